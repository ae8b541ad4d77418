//go:build windows

package proctree

import (
	"strconv"
	"strings"
)

func (k *systemKiller) killByPID(pid int32) error {
	return k.run("taskkill", "/F", "/PID", strconv.Itoa(int(pid)))
}

func (k *systemKiller) killByName(name string) error {
	if !strings.HasSuffix(strings.ToLower(name), ".exe") {
		name += ".exe"
	}
	return k.run("taskkill", "/F", "/IM", name)
}
