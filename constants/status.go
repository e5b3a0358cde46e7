package constants

// DocumentState is the position of a document in the extraction state machine.
type DocumentState string

const (
	StateDiscovered      DocumentState = "DISCOVERED"
	StateClassified      DocumentState = "CLASSIFIED"
	StateSkipped         DocumentState = "SKIPPED" // terminal: not relevant, no service cost
	StateUploaded        DocumentState = "UPLOADED"
	StateSchemaGenerated DocumentState = "SCHEMA_GENERATED"
	StateStandardized    DocumentState = "STANDARDIZED"
	StateValidated       DocumentState = "VALIDATED"
	StateSucceeded       DocumentState = "SUCCEEDED" // terminal
	StateFailed          DocumentState = "FAILED"    // terminal
)

// Terminal reports whether no further transition leaves s.
func (s DocumentState) Terminal() bool {
	return s == StateSkipped || s == StateSucceeded || s == StateFailed
}

// Outcome is the terminal result recorded in a checkpoint.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Split is one partition of the training dataset.
type Split string

const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
	SplitTest  Split = "test"
)

// Splits lists the partitions in export order.
var Splits = []Split{SplitTrain, SplitVal, SplitTest}
