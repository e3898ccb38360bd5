// Package protocol defines the wire-level command tokens shared by the
// controller, the data node, and their tests. It holds no behavior —
// only the vocabulary spec.md §6 fixes for the text protocol.
package protocol

// Client -> controller
const (
	Store   = "STORE"
	Load    = "LOAD"
	Reload  = "RELOAD"
	Remove  = "REMOVE"
	ListCmd = "LIST"
)

// Controller -> client
const (
	StoreTo        = "STORE_TO"
	StoreComplete  = "STORE_COMPLETE"
	LoadFrom       = "LOAD_FROM"
	RemoveComplete = "REMOVE_COMPLETE"

	ErrFileAlreadyExists   = "ERROR_FILE_ALREADY_EXISTS"
	ErrFileDoesNotExist    = "ERROR_FILE_DOES_NOT_EXIST"
	ErrNotEnoughDstores    = "ERROR_NOT_ENOUGH_DSTORES"
	ErrLoad                = "ERROR_LOAD"
)

// Node -> controller (unsolicited JOIN, plus replies to controller requests)
const (
	Join              = "JOIN"
	StoreAck          = "STORE_ACK"
	RemoveAck         = "REMOVE_ACK"
	RebalanceComplete = "REBALANCE_COMPLETE"
)

// Controller -> node
const (
	Rebalance = "REBALANCE"
)

// Client/node <-> data node, out of the controller's view but named here
// so tests that spin up a reference data node share the vocabulary.
const (
	Ack             = "ACK"
	LoadData        = "LOAD_DATA"
	RebalanceStore  = "REBALANCE_STORE"
)
