package core

type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// ResultRecord is the outcome of processing one file. Exactly one is created
// per discovered file, by the worker that owns it.
type ResultRecord struct {
	Path    string
	Status  Status
	Payload string
}

func SuccessRecord(path, summary string) ResultRecord {
	return ResultRecord{Path: path, Status: StatusSuccess, Payload: summary}
}

func FailedRecord(path string, err error) ResultRecord {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ResultRecord{Path: path, Status: StatusFailed, Payload: msg}
}

// Row is the CSV representation of the record.
func (r ResultRecord) Row() []string {
	return []string{r.Path, string(r.Status), r.Payload}
}

var LogHeader = []string{"File Path", "Status", "Result"}

// NewResultChannel creates the channel shared by the workers and the writer.
// A bounded buffer gives workers backpressure against a slow writer.
func NewResultChannel(buffer int) chan ResultRecord {
	if buffer < 0 {
		buffer = 0
	}
	return make(chan ResultRecord, buffer)
}
