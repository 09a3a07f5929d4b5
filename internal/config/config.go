// Package config loads srcpd's INI configuration file (spec.md §6) into
// typed structs, one per enabled SRCP server (srcp, s88, ddl).
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

type SRCPConfig struct {
	Port int
}

type S88Config struct {
	Bus          int
	RefreshMs    int
	Repeat       int // odd, for majority-vote debouncing
	SPIPort      string
	SPIMode      int // 1 or 2
	NumberFB     [4]int
	TriggerPort  string
	TriggerFB    [4]bool
}

type DDLConfig struct {
	Bus                     int
	SPIPort                 string
	Maerklin                bool
	DCC                     bool
	MFXCentralUID           uint32
	MFXEnabled              bool
	MFXRegCountFile         string
	MFXRDSPort              string
	Siggmode                bool
	DSRInvers               bool
	ShortcutDelayMs         int
	TimeoutShortcutPowerOff int // 0 = disabled
	Watchdog                bool
	TriggerPort             string
	TriggerGL               bool
	TriggerGA               bool
	TriggerSM               bool
}

// Config is the fully parsed configuration file: one SRCP listener plus
// every enabled S88 and DDL bus section.
type Config struct {
	SRCP SRCPConfig
	S88  []S88Config
	DDL  []DDLConfig
}

// Load parses path per spec.md §6: a required [srcp] section, and one
// section per enabled server ([s88], [ddl]) named directly after the
// server kind — srcpd supports exactly one bus per section, matching the
// original daemon's configuration shape.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	cfg := &Config{}

	srcpSec, err := f.GetSection("srcp")
	if err != nil {
		return nil, fmt.Errorf("config: missing required [srcp] section: %w", err)
	}
	cfg.SRCP.Port = srcpSec.Key("port").MustInt(4303)

	if s88Sec, err := f.GetSection("s88"); err == nil {
		var s S88Config
		s.Bus = s88Sec.Key("bus").MustInt(0)
		s.RefreshMs = s88Sec.Key("refresh").MustInt(100)
		s.Repeat = s88Sec.Key("repeat").MustInt(3)
		s.SPIPort = s88Sec.Key("spiport").String()
		s.SPIMode = s88Sec.Key("spimode").MustInt(1)
		for i := 0; i < 4; i++ {
			s.NumberFB[i] = s88Sec.Key(fmt.Sprintf("number_fb_%d", i+1)).MustInt(0)
			s.TriggerFB[i] = s88Sec.Key(fmt.Sprintf("trigger_fb_%d", i+1)).MustBool(false)
		}
		s.TriggerPort = s88Sec.Key("trigger_port").String()
		cfg.S88 = append(cfg.S88, s)
	}

	if ddlSec, err := f.GetSection("ddl"); err == nil {
		var d DDLConfig
		d.Bus = ddlSec.Key("bus").MustInt(0)
		d.SPIPort = ddlSec.Key("spiport").String()
		d.Maerklin = ddlSec.Key("maerklin").MustBool(false)
		d.DCC = ddlSec.Key("dcc").MustBool(false)
		if uidKey := ddlSec.Key("mfx"); uidKey.String() != "" {
			d.MFXEnabled = true
			d.MFXCentralUID = uint32(uidKey.MustUint64(0))
		}
		d.MFXRegCountFile = ddlSec.Key("mfx_reg_count_file").MustString("/etc/srcpd.regcount")
		d.MFXRDSPort = ddlSec.Key("mfx_rds_port").String()
		d.Siggmode = ddlSec.Key("siggmode").MustBool(false)
		d.DSRInvers = ddlSec.Key("dsr_invers").MustBool(false)
		d.ShortcutDelayMs = ddlSec.Key("shortcut_delay").MustInt(100)
		d.TimeoutShortcutPowerOff = ddlSec.Key("timeout_shortcut_power_off").MustInt(0)
		d.Watchdog = ddlSec.Key("watchdog").MustBool(false)
		d.TriggerPort = ddlSec.Key("trigger_port").String()
		d.TriggerGL = ddlSec.Key("trigger_gl").MustBool(false)
		d.TriggerGA = ddlSec.Key("trigger_ga").MustBool(false)
		d.TriggerSM = ddlSec.Key("trigger_sm").MustBool(false)
		cfg.DDL = append(cfg.DDL, d)
	}

	if len(cfg.S88) == 0 && len(cfg.DDL) == 0 {
		return nil, fmt.Errorf("config: neither [s88] nor [ddl] is configured")
	}
	return cfg, nil
}
