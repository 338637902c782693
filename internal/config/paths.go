package config

import "path/filepath"

// All burstd-managed directories live under the home dir (~/.burstd or
// BURSTD_HOME) so an installation can be moved or backed up as one tree.

// Home returns the burstd root directory (ResolveHome()).
func Home() string {
	return ResolveHome()
}

// DataDir returns the data directory, fixed at home/data.
func DataDir() string {
	return filepath.Join(Home(), "data")
}

// HistoryDir returns the conversation-history directory, fixed at
// home/data/history.
func HistoryDir() string {
	return filepath.Join(DataDir(), "history")
}

// LogsDir returns the log directory, fixed at home/logs.
func LogsDir() string {
	return filepath.Join(Home(), "logs")
}

// BridgesDir returns the default root for bridge checkouts, fixed at
// home/bridges. Instances may still point anywhere via an absolute path.
func BridgesDir() string {
	return filepath.Join(Home(), "bridges")
}
