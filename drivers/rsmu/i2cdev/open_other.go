//go:build !linux

package i2cdev

import "rsmu-go/errcode"

func Open(o Options) (*Conn, error) {
	return nil, errcode.Unsupported("i2c_open", "i2c-dev needs linux")
}
