package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	defaultAPIKey      = "bridgarr"
	defaultListen      = ":9117"
	defaultProviderURL = "https://darkiworld.com"
	defaultEngineURL   = "https://api.jdownloader.org"
	defaultDeviceName  = "bridgarr"

	providerTimeout   = 30 * time.Second
	engineTimeout     = 30 * time.Second
	engineMaxRetries  = 5
	engineRetryDelay  = 5 * time.Second
	searchMaxTitles   = 10
	searchMaxLinks    = 15
	verifyTimeout     = 10 * time.Second
	verifyMaxParallel = 5
	verifyFreshness   = 10 * time.Minute
	pollInterval      = 30 * time.Second
)

var (
	dataDir   = filepath.Join(xdg.DataHome, "bridgarr")
	outputDir = filepath.Join(xdg.UserDirs.Download, "bridgarr")
)
