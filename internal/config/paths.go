package config

import "path/filepath"

// ResolvePaths converts the configuration's relative filesystem paths to
// absolute ones, anchored at the current working directory, so later
// chdir calls (daemonization, test harnesses) cannot silently repoint the
// data directory.
func (c *Config) ResolvePaths() error {
	paths := []*string{
		&c.Storage.DataDir,
		&c.Storage.WALDir,
		&c.Server.TLSCert,
		&c.Server.TLSKey,
		&c.Server.PIDFile,
		&c.ACLFile,
		&c.Logging.Store.DBPath,
	}

	for _, p := range paths {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return err
		}
		*p = abs
	}
	return nil
}
