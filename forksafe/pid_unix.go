//go:build unix

package forksafe

import "golang.org/x/sys/unix"

func getpid() int {
	return unix.Getpid()
}
