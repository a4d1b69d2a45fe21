// Command dashboardctl служебные команды дашборда: разовый снапшот и экспорт,
// выпуск токенов доступа и создание локальной базы-фикстуры.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
