// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"math/rand"

	"github.com/envira/ieq-pipeline/internal/wallclock"
)

// Client IDs must be 1 to 23 alphanumeric characters to be accepted by every
// compliant broker:
// https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901059
const (
	maxClientIDLength = 23
	clientIDPrefix    = "envira"
)

var validClientIDCharacters = []byte(
	"0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
)

// RandomClientID generates a valid client ID for an ingest instance. Ingest
// sessions always start clean, so a fresh ID per process is safe.
func RandomClientID() string {
	seed := wallclock.Instance.Now().UnixNano()
	// #nosec G404
	r := rand.New(rand.NewSource(seed))

	id := make([]byte, maxClientIDLength)
	n := copy(id, clientIDPrefix)
	for i := n; i < len(id); i++ {
		id[i] = validClientIDCharacters[r.Intn(len(validClientIDCharacters))]
	}
	return string(id)
}
