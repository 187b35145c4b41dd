// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"bytes"
	"context"
	"os"
)

type (
	// UsernameProvider returns the MQTT username for the next connect attempt.
	// The username is only sent if the returned flag is true.
	UsernameProvider func(context.Context) (string, bool, error)

	// PasswordProvider returns the MQTT password for the next connect attempt.
	// The password is only sent if the returned flag is true.
	PasswordProvider func(context.Context) ([]byte, bool, error)
)

// ConstantUsername always returns the same username. An empty username is
// treated as absent.
func ConstantUsername(username string) UsernameProvider {
	return func(context.Context) (string, bool, error) {
		return username, username != "", nil
	}
}

// ConstantPassword always returns the same password. An empty password is
// treated as absent.
func ConstantPassword(password []byte) PasswordProvider {
	return func(context.Context) ([]byte, bool, error) {
		return password, len(password) > 0, nil
	}
}

// FilePassword rereads the password from the file on every connect attempt,
// so rotated secrets are picked up on reconnect.
func FilePassword(filename string) PasswordProvider {
	return func(context.Context) ([]byte, bool, error) {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, false, err
		}
		data = bytes.TrimRight(data, "\r\n")
		return data, true, nil
	}
}
