// deployctl은 운영자용 CLI입니다. 서버와 같은 설정(.env / 환경 변수)으로 DB와 terraform에 직접 접근합니다.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
