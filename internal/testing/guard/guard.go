// Package guard turns WORKSITE_TEST_MODE on when imported. Unlike the root
// testing package it carries no TestMain.
package guard

import (
	"os"
	"sync"
)

const envTestMode = "WORKSITE_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(envTestMode) == "" {
			_ = os.Setenv(envTestMode, "1")
		}
	})
}
