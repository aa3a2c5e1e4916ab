package routes

var (
	SessionAuth = []map[string][]string{
		{"session": {}},
	}
)

type Tag string

const (
	TagAuth     Tag = "auth"
	TagChat     Tag = "chat"
	TagGeneral  Tag = "general"
	TagSession  Tag = "session"
	TagSettings Tag = "settings"
)

func (t Tag) String() string { return string(t) }

func AllTags() []string {
	return []string{
		TagAuth.String(),
		TagChat.String(),
		TagGeneral.String(),
		TagSession.String(),
		TagSettings.String(),
	}
}
