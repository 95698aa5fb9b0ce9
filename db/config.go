package db

import (
	"os"
	"time"

	"github.com/Corvalius/ravendb/constant"
	"github.com/hashicorp/hcl"
)

func DefaultConfig() Config {
	return Config{
		DirName:         "pagedb",
		PageSize:        constant.DefaultPageSize,
		ScratchFileSize: constant.DefaultScratchFileSize,
		MaxScratchFiles: constant.DefaultMaxScratchFiles,
		JournalFileSize: constant.DefaultJournalFileSize,
		CacheSize:       constant.DefaultCacheSize,
		FlushCycle:      constant.FlushCycle,
		LogWriter:       os.Stderr,
	}
}

type fileConfig struct {
	DirName         string `hcl:"dir_name"`
	PageSize        int64  `hcl:"page_size"`
	MaxStorageSize  int64  `hcl:"max_storage_size"`
	ScratchFileSize int64  `hcl:"scratch_file_size"`
	MaxScratchFiles int    `hcl:"max_scratch_files"`
	JournalFileSize int64  `hcl:"journal_file_size"`
	CompressJournal bool   `hcl:"compress_journal"`
	CacheSize       int64  `hcl:"cache_size"`
	FlushCycleMs    int64  `hcl:"flush_cycle_ms"`
}

// LoadConfig overlays an HCL config file on the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var fc fileConfig
	if err := hcl.Decode(&fc, string(b)); err != nil {
		return cfg, err
	}
	if fc.DirName != "" {
		cfg.DirName = fc.DirName
	}
	if fc.PageSize != 0 {
		cfg.PageSize = fc.PageSize
	}
	if fc.MaxStorageSize != 0 {
		cfg.MaxStorageSize = fc.MaxStorageSize
	}
	if fc.ScratchFileSize != 0 {
		cfg.ScratchFileSize = fc.ScratchFileSize
	}
	if fc.MaxScratchFiles != 0 {
		cfg.MaxScratchFiles = fc.MaxScratchFiles
	}
	if fc.JournalFileSize != 0 {
		cfg.JournalFileSize = fc.JournalFileSize
	}
	if fc.CacheSize != 0 {
		cfg.CacheSize = fc.CacheSize
	}
	if fc.FlushCycleMs != 0 {
		cfg.FlushCycle = time.Duration(fc.FlushCycleMs) * time.Millisecond
	}
	cfg.CompressJournal = fc.CompressJournal
	return cfg, nil
}
