package db

// Project is a row in the projects table: a stable identity for a
// watched directory, keyed by the 128-bit id in its marker file.
type Project struct {
	ID          string
	RootPath    string
	Name        string
	Description string
	CreatedAt   float64
	UpdatedAt   float64
}

// File is a row in the files table. Path is stored absolute; a deleted
// file keeps its row and backups but is hidden from scans.
type File struct {
	ID            int64
	ProjectID     string
	Path          string
	Lines         int
	LastModified  float64
	Deleted       bool
	OriginalPath  string
	VersionDir    string
	NeedsChunking bool
}

// ASTTree is a snapshot of a file's parsed tree, serialized as text.
type ASTTree struct {
	ID        int64
	FileID    int64
	ProjectID string
	TreeText  string
	Hash      string
	FileMtime float64
	CreatedAt float64
}

// CSTTree is the concrete-syntax-tree counterpart of ASTTree, storing
// the full source text alongside its hash.
type CSTTree struct {
	ID         int64
	FileID     int64
	ProjectID  string
	SourceText string
	Hash       string
	FileMtime  float64
	CreatedAt  float64
}

// Class is an extracted class definition.
type Class struct {
	ID        int64
	FileID    int64
	Name      string
	Line      int
	Docstring string
	Bases     string // comma-separated base class names
}

// Method is an extracted method definition bound to a class.
type Method struct {
	ID         int64
	ClassID    int64
	Name       string
	Line       int
	Args       string
	Docstring  string
	IsAbstract bool
	IsStub     bool
}

// Function is an extracted module-level function definition.
type Function struct {
	ID        int64
	FileID    int64
	Name      string
	Line      int
	Args      string
	Docstring string
	IsStub    bool
}

// ImportKind distinguishes a bare "import x" from a "from x import y".
type ImportKind string

const (
	ImportKindBare ImportKind = "bare"
	ImportKindFrom ImportKind = "from"
)

// Import is an extracted import statement, one row per imported name.
type Import struct {
	ID     int64
	FileID int64
	Name   string
	Module string
	Kind   ImportKind
	Line   int
}

// UsageKind and TargetKind classify a usage row per the indexer's
// extraction rules.
type UsageKind string

const (
	UsageKindCall         UsageKind = "call"
	UsageKindAttribute    UsageKind = "attribute"
	UsageKindInstantiate  UsageKind = "instantiation"
)

type TargetKind string

const (
	TargetKindFunction TargetKind = "function"
	TargetKindMethod   TargetKind = "method"
	TargetKindClass    TargetKind = "class"
)

// Usage is a reference produced by traversing call sites and attribute
// accesses.
type Usage struct {
	ID          int64
	FileID      int64
	Line        int
	Kind        UsageKind
	TargetKind  TargetKind
	TargetClass string
	TargetName  string
	Context     string
}

// ChunkKind distinguishes which construct a chunk's docstring came from.
type ChunkKind string

const (
	ChunkKindModule   ChunkKind = "module"
	ChunkKindClass    ChunkKind = "class"
	ChunkKindMethod   ChunkKind = "method"
	ChunkKindFunction ChunkKind = "function"
)

// Chunk is a semantic text fragment prepared for vector search. A chunk
// either has both VectorID and EmbeddingModel set, or neither.
type Chunk struct {
	ID             int64
	ChunkUUID      string
	FileID         int64
	ProjectID      string
	Kind           ChunkKind
	Text           string
	Ordinal        int
	VectorID       *int64
	EmbeddingModel *string
	ClassID        *int64
	FunctionID     *int64
	MethodID       *int64
	Line           int
	ASTNodeKind    string
}

// VectorIndexEntry maps an entity to its position in the vector index.
type VectorIndexEntry struct {
	ID             int64
	ProjectID      string
	EntityKind     string
	EntityID       int64
	VectorID       int64
	VectorDim      int
	EmbeddingModel string
}
