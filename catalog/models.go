package catalog

import (
	"time"

	"github.com/bizzlechizzle/aupat-sub000/content"
	"github.com/bizzlechizzle/aupat-sub000/layout"
)

// Location is an archival site. LocID is a full UUID; only its first 8
// characters appear in paths and filenames, so creation goes through a
// collision check on that prefix.
type Location struct {
	LocID     string `gorm:"column:loc_id;type:char(36);not null;primary_key"`
	Name      string `gorm:"type:varchar(255);not null"`
	State     string `gorm:"type:char(2);not null"`
	Type      string `gorm:"type:varchar(64);not null"`
	SubType   string `gorm:"type:varchar(64)"`
	Address   string `gorm:"type:varchar(512)"`
	Lat       float64
	Lon       float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l *Location) TableName() string {
	return "locations"
}

// UUID8 is the path/filename prefix of the location.
func (l *Location) UUID8() string {
	return content.Short(l.LocID, content.ShortLen)
}

// Dir is the location's archive directory relative to the archive root.
func (l *Location) Dir() string {
	return layout.LocationDir(l.State, l.Type, l.Name, l.LocID)
}

// SubLocation namespaces filenames for a sub-area within a site.
type SubLocation struct {
	SubID     string `gorm:"column:sub_id;type:char(36);not null;primary_key"`
	LocID     string `gorm:"column:loc_id;type:char(36);not null;index"`
	Name      string `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *SubLocation) TableName() string {
	return "sub_locations"
}

// MediaRecord is one archived file. The content hash is the identity:
// two files with identical bytes are the same record, whatever they
// were originally called. FilePath and FileName are the only fields the
// pipeline mutates after insert.
type MediaRecord struct {
	Hash     string `gorm:"column:hash;type:char(64);not null;primary_key"`
	LocID    string `gorm:"column:loc_id;type:char(36);not null;index"`
	SubID    string `gorm:"column:sub_id;type:char(36)"`
	FileName string `gorm:"type:varchar(255);not null"`
	FilePath string `gorm:"type:varchar(4096);not null"`
	OrigName string `gorm:"type:varchar(255);not null"`
	OrigPath string `gorm:"type:varchar(4096);not null"`
	Ext      string `gorm:"type:varchar(16);not null"`
	Size     int64  `gorm:"type:bigint;not null"`

	Camera    bool `gorm:"not null"`
	Phone     bool `gorm:"not null"`
	Drone     bool `gorm:"not null"`
	ActionCam bool `gorm:"column:action_cam;not null"`
	DashCam   bool `gorm:"column:dash_cam;not null"`
	Film      bool `gorm:"not null"`
	Other     bool `gorm:"not null"`

	Width    int
	Height   int
	Duration float64
	Meta     string `gorm:"type:text"`

	ImportedAt time.Time
	VerifiedAt *time.Time
	Verified   bool `gorm:"not null"`
}

// Hardware returns the category whose flag is set, or empty when the
// record has not been organized yet.
func (m *MediaRecord) Hardware() layout.Hardware {
	switch {
	case m.Camera:
		return layout.HardwareCamera
	case m.Phone:
		return layout.HardwarePhone
	case m.Drone:
		return layout.HardwareDrone
	case m.ActionCam:
		return layout.HardwareAction
	case m.DashCam:
		return layout.HardwareDashCam
	case m.Film:
		return layout.HardwareFilm
	case m.Other:
		return layout.HardwareOther
	}
	return ""
}

// SetHardware sets exactly one category flag, clearing the rest.
func (m *MediaRecord) SetHardware(hw layout.Hardware) {
	m.Camera = hw == layout.HardwareCamera
	m.Phone = hw == layout.HardwarePhone
	m.Drone = hw == layout.HardwareDrone
	m.ActionCam = hw == layout.HardwareAction
	m.DashCam = hw == layout.HardwareDashCam
	m.Film = hw == layout.HardwareFilm
	m.Other = hw == layout.HardwareOther
}

// One table per media category, all with the MediaRecord shape. The
// maps table is fed by the bulk map importer but shares the dedup API.
type (
	imgModel      struct{ MediaRecord }
	videoModel    struct{ MediaRecord }
	documentModel struct{ MediaRecord }
	mapModel      struct{ MediaRecord }
)

func (imgModel) TableName() string      { return "imgs" }
func (videoModel) TableName() string    { return "videos" }
func (documentModel) TableName() string { return "documents" }
func (mapModel) TableName() string      { return "maps" }

// mediaTable maps a media type to its table name.
func mediaTable(mt layout.MediaType) (string, error) {
	switch mt {
	case layout.MediaImage:
		return "imgs", nil
	case layout.MediaVideo:
		return "videos", nil
	case layout.MediaDocument:
		return "documents", nil
	case layout.MediaMap:
		return "maps", nil
	}
	return "", ErrUnknownMediaType
}

type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchPartial   BatchStatus = "partial"
	BatchFailed    BatchStatus = "failed"
)

// ImportBatch is one execution of the pipeline.
type ImportBatch struct {
	BatchID         string `gorm:"column:batch_id;type:char(36);not null;primary_key"`
	LocUUID         string `gorm:"column:loc_uuid;type:char(36);not null;index"`
	SourcePath      string `gorm:"type:varchar(4096);not null"`
	BatchStart      time.Time
	BatchEnd        *time.Time
	Status          BatchStatus `gorm:"type:varchar(16);not null"`
	TotalFiles      int64
	FilesImported   int64
	FilesSkipped    int64
	FilesFailed     int64
	DuplicatesFound int64
	BackupPath      string `gorm:"type:varchar(4096)"`
	ErrorLog        string `gorm:"type:text"`
}

func (b *ImportBatch) TableName() string {
	return "import_batches"
}

type Stage string

const (
	StageStaging  Stage = "staging"
	StageOrganize Stage = "organize"
	StageFolder   Stage = "folder"
	StageIngest   Stage = "ingest"
	StageVerify   Stage = "verify"
)

type LogStatus string

const (
	LogSuccess   LogStatus = "success"
	LogDuplicate LogStatus = "duplicate"
	LogSkipped   LogStatus = "skipped"
	LogFailed    LogStatus = "failed"
)

// ImportLog is one (file, stage) observation; enough detail to
// reconstruct what happened without re-deriving it.
type ImportLog struct {
	LogID            int64  `gorm:"column:log_id;primary_key;auto_increment"`
	BatchID          string `gorm:"column:batch_id;type:char(36);not null;index"`
	FilePath         string `gorm:"type:varchar(4096)"`
	FileName         string `gorm:"type:varchar(255)"`
	FileSHA256       string `gorm:"column:file_sha256;type:char(64)"`
	Timestamp        time.Time
	Stage            Stage     `gorm:"type:varchar(16);not null"`
	Status           LogStatus `gorm:"type:varchar(16);not null"`
	MediaType        string    `gorm:"type:varchar(16)"`
	HardwareCategory string    `gorm:"type:varchar(16)"`
	StagingPath      string    `gorm:"type:varchar(4096)"`
	ArchivePath      string    `gorm:"type:varchar(4096)"`
	ErrorMessage     string    `gorm:"type:text"`
}

func (l *ImportLog) TableName() string {
	return "import_log"
}
