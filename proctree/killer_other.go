//go:build !windows

package proctree

import (
	"strconv"
)

func (k *systemKiller) killByPID(pid int32) error {
	return k.run("kill", "-9", strconv.Itoa(int(pid)))
}

func (k *systemKiller) killByName(name string) error {
	return k.run("pkill", "-9", "-x", name)
}
