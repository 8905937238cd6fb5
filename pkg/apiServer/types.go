package apiServer

type encodeRequest struct {
	Data        *string `json:"data"`
	ChunkSize   int     `json:"chunk_size,omitempty"`
	Passphrase  string  `json:"passphrase,omitempty"`
	Compression string  `json:"compression,omitempty"`
	Labels      *bool   `json:"labels,omitempty"`
}

type decodeResponse struct {
	Data        string `json:"data"`
	SHA256      string `json:"sha256"`
	MessageID   string `json:"message_id"`
	TotalChunks int    `json:"total_chunks"`
	Encrypted   bool   `json:"encrypted"`
	Compression string `json:"compression"`
	IssuedHere  bool   `json:"issued_here"`
}

type errorResponse struct {
	Error             string   `json:"error"`
	Kind              string   `json:"kind,omitempty"`
	Stage             string   `json:"stage,omitempty"`
	SHA256            string   `json:"sha256,omitempty"`
	MessageIDs        []string `json:"message_ids,omitempty"`
	Missing           []int    `json:"missing,omitempty"`
	Duplicates        []int    `json:"duplicates,omitempty"`
	ConflictingTotals []int    `json:"conflicting_totals,omitempty"`
}

type estimateResponse struct {
	TotalChunks int `json:"total_chunks"`
	ChunkSize   int `json:"chunk_size"`
}

type Option func(*Server)
