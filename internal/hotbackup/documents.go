package hotbackup

// StatusDocument is the progress report returned while a backup is running.
type StatusDocument struct {
	Percent   float64      `json:"percent"`
	BytesDone int64        `json:"bytesDone"`
	Files     FileCounts   `json:"files"`
	Current   *CurrentFile `json:"current,omitempty"`
}

// FileCounts counts fully copied files against the known total.
type FileCounts struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// CurrentFile describes the file transfer in flight. Dest and Bytes are only
// present once the engine has reported a destination for it.
type CurrentFile struct {
	Source string      `json:"source"`
	Dest   string      `json:"dest,omitempty"`
	Bytes  *ByteCounts `json:"bytes,omitempty"`
}

// ByteCounts is a done/total byte pair for a single file.
type ByteCounts struct {
	Done  int64 `json:"done"`
	Total int64 `json:"total"`
}

// ErrorDocument is the failure report for an attempt: the engine's message
// and code verbatim, plus the platform description of the code as an errno.
type ErrorDocument struct {
	Message  string `json:"message"`
	Errno    int    `json:"errno"`
	Strerror string `json:"strerror"`
}

// Result is the outcome of one backup attempt. Reason is present only when
// the attempt was interrupted.
type Result struct {
	OK     bool           `json:"ok"`
	Error  *ErrorDocument `json:"error,omitempty"`
	Reason string         `json:"reason,omitempty"`
}
