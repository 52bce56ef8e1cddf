package version

import "fmt"

// Заполняются через -ldflags при сборке релиза.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) {
	return version, commit, date
}

// String собирает строку вида "version=... commit=... date=..." для логов.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
