package model

// Logical folder names exposed to callers.
const (
	FolderInbox      = "INBOX"
	FolderSpam       = "SPAM"
	FolderPromotions = "PROMOTIONS"
	FolderUpdates    = "UPDATES"
)

// ErrorMarker replaces a folder's subject list when that folder alone
// could not be read.
const ErrorMarker = "<error>"

// Folder maps a logical folder name to the server-side mailbox path.
type Folder struct {
	Name string `mapstructure:"name" yaml:"name" json:"name"`
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// LogicalFolders is the fixed iteration order of the logical folders.
var LogicalFolders = []string{
	FolderInbox,
	FolderSpam,
	FolderPromotions,
	FolderUpdates,
}

// DefaultFolders returns the Gmail folder layout.
func DefaultFolders() []Folder {
	return []Folder{
		{Name: FolderInbox, Path: "INBOX"},
		{Name: FolderSpam, Path: "[Gmail]/Spam"},
		{Name: FolderPromotions, Path: "[Gmail]/Promotions"},
		{Name: FolderUpdates, Path: "[Gmail]/Updates"},
	}
}

// FolderPaths holds the configurable remote path for each logical folder.
type FolderPaths struct {
	Inbox      string `mapstructure:"inbox" yaml:"inbox"`
	Spam       string `mapstructure:"spam" yaml:"spam"`
	Promotions string `mapstructure:"promotions" yaml:"promotions"`
	Updates    string `mapstructure:"updates" yaml:"updates"`
}

// Folders returns the ordered folder list, falling back to the default
// path for any logical folder left blank.
func (p FolderPaths) Folders() []Folder {
	folders := DefaultFolders()
	overrides := []string{p.Inbox, p.Spam, p.Promotions, p.Updates}
	for i, path := range overrides {
		if path != "" {
			folders[i].Path = path
		}
	}
	return folders
}
