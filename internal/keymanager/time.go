package keymanager

import "time"

func unixNow() int64 {
	return time.Now().UTC().Unix()
}
