package main

import (
	"fmt"
	"net"
	"time"

	"github.com/creditmesh/funder/funder"
)

// requestTimeout bounds how long a single command waits for funderd's
// reply before giving up, since the control connection also carries
// asynchronous notifications the command itself never asked for.
const requestTimeout = 10 * time.Second

// sendRequest opens a fresh connection to rpcServer, sends msg, and reads
// responses until accept reports a match. A fresh per-command connection
// can still see an unrelated asynchronous notification (e.g. a
// ResponseReceived for some other in-flight payment) ahead of this
// command's own reply, so every caller filters on the response shape it
// actually expects rather than taking the first frame unconditionally.
func sendRequest(rpcServer string, msg funder.IncomingControlMessage, accept func(controlResponse) bool) (*controlResponse, error) {
	conn, err := net.Dial("tcp", rpcServer)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", rpcServer, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(requestTimeout))

	if err := writeFrame(conn, msg); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	for {
		var resp controlResponse
		if err := readFrame(conn, &resp); err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if !accept(resp) {
			continue
		}
		return &resp, nil
	}
}

// byRequestId accepts the reply whose RequestId matches msg's.
func byRequestId(msg funder.IncomingControlMessage) func(controlResponse) bool {
	return func(r controlResponse) bool { return r.RequestId == msg.RequestId }
}

// byKind accepts the first reply of any of kinds.
func byKind(kinds ...funder.ResponseKind) func(controlResponse) bool {
	return func(r controlResponse) bool {
		for _, k := range kinds {
			if r.Kind == k {
				return true
			}
		}
		return false
	}
}
