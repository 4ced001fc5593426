package documents

// WatchedDocument is the tracking record for one polled Drive document.
// ContentHash is empty until the first successful ingest; afterwards it is
// always HashContent(Content).
type WatchedDocument struct {
	FileID       string `json:"file_id"`
	ClientID     string `json:"client_id"`
	FileName     string `json:"file_name"`
	ContentHash  string `json:"content_hash"`
	LastModified string `json:"last_modified"` // source-provided, opaque
	Content      string `json:"content,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Change is the classification of freshly fetched content against the stored record.
type Change int

const (
	ChangeNew Change = iota
	ChangeChanged
	ChangeUnchanged
)

func (c Change) String() string {
	switch c {
	case ChangeNew:
		return "new"
	case ChangeChanged:
		return "changed"
	case ChangeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Submission records one successful forward to the memory backend.
type Submission struct {
	ID          string
	ClientID    string
	AssistantID string
	Source      string // "drive", "telegram", "upload", ...
	Ref         string // file id, chat id or title
	ContentHash string
	Response    string
	CreatedAt   int64
}

// RegisterResult reports how a registration was applied.
type RegisterResult struct {
	Document WatchedDocument
	Created  bool
	Reason   string
}
