//go:build !unix

package forksafe

import "os"

func getpid() int {
	return os.Getpid()
}
