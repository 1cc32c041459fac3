// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package health serves the gateway liveness probe.
package health

import (
	"encoding/json"
	"net/http"
)

// Status is the liveness body. It is a bare JSON string.
const Status = "alive"

// Handler implements the liveness probe. It reports only that the
// process is serving HTTP and never inspects the broker connection.
func Handler() http.Handler {
	return http.HandlerFunc(handleHealth)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(Status)
}
