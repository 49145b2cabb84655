package config

import (
	"strconv"

	"github.com/vearne/capsync/consts"
)

// WorkerArgs builds the worker's argument vector from o. The result always
// ends with the child-mode flag naming the inherited control pipe.
func WorkerArgs(o *CaptureOptions) []string {
	args := []string{"-i", o.Interface}
	if o.SnapLen > 0 {
		args = append(args, "-s", strconv.Itoa(o.SnapLen))
	}
	if o.LinkType != "" {
		args = append(args, "-y", o.LinkType)
	}
	if o.Autostop.Packets > 0 {
		args = append(args, "-c", strconv.Itoa(o.Autostop.Packets))
	}
	if o.Autostop.FileSize > 0 {
		args = append(args, "-a", "filesize:"+strconv.FormatInt(int64(o.Autostop.FileSize), 10))
	}
	if o.Autostop.Duration > 0 {
		args = append(args, "-a", "duration:"+formatSeconds(o.Autostop.Duration))
	}
	if o.Autostop.Files > 0 {
		args = append(args, "-a", "files:"+strconv.Itoa(o.Autostop.Files))
	}
	if o.Ring.Enabled {
		if o.Ring.FileSize > 0 {
			args = append(args, "-b", "filesize:"+strconv.FormatInt(int64(o.Ring.FileSize), 10))
		}
		if o.Ring.Duration > 0 {
			args = append(args, "-b", "duration:"+formatSeconds(o.Ring.Duration))
		}
		if o.Ring.NumFiles > 0 {
			args = append(args, "-b", "files:"+strconv.Itoa(o.Ring.NumFiles))
		}
	}
	if !o.Promiscuous {
		args = append(args, "-p")
	}
	if o.Filter != "" {
		args = append(args, "-f", o.Filter)
	}
	if o.SavePath != "" {
		args = append(args, "-w", o.SavePath)
	}
	return append(args, "-Z", strconv.Itoa(consts.SyncPipeFD))
}
