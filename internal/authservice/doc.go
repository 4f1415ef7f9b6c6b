// Package authservice is the orchestration core of the authorization
// subsystem. It exposes the operations the agent runtime calls (start a
// flow, query status, fetch a usable credential, revoke) and implements the
// completion side of the callback listener, so one component owns every
// state transition a flow can take.
package authservice
