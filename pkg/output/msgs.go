package output

// Confirmation messages. Each is followed by the subject it refers to.
const (
	MsgFileUpdated     = "updated file in package:"
	MsgFileRemoved     = "file deleted in source, removed in package:"
	MsgDirAdded        = "directory added in source, added in package:"
	MsgDirRemoved      = "directory deleted in source, deleted matching directory in package:"
	MsgWatchingNewFile = "added watcher for new top level file:"
	MsgWatchingNewDir  = "added watcher for new top level directory:"
	MsgInstalling      = "installing package from"
	MsgInstalled       = "installed package, creating watchers for top-level files/folders:"
	MsgSkipInstall     = "skipping install, syncing into existing package at"
	MsgWatchersCreated = "created watchers for source"
)
