package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモード。ワーカーも同一プロセスで起動する。
	CommandServe Command = "serve"
	// CommandMigrate はDBマイグレーション実行モード。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックモード（Dockerヘルスチェック用）。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空、または未知のサブコマンドの場合はserveを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case string(CommandMigrate):
		return CommandMigrate
	case string(CommandHealthcheck):
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
