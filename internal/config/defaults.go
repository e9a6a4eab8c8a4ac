package config

// defaultGroups mirrors the sixteen-group layout the original repo ships as
// its default sp_mapping.groups, grounded on
// original_source/app/storage/config.py's default_groups.
var defaultGroups = []SPGroup{
	{ID: 1, StartSP: 1, EndSP: 70, ColsPerRow: 5},
	{ID: 2, StartSP: 71, EndSP: 151, ColsPerRow: 5},
	{ID: 3, StartSP: 152, EndSP: 210, ColsPerRow: 5},
	{ID: 4, StartSP: 211, EndSP: 280, ColsPerRow: 5},
	{ID: 5, StartSP: 281, EndSP: 350, ColsPerRow: 5},
	{ID: 6, StartSP: 351, EndSP: 420, ColsPerRow: 5},
	{ID: 7, StartSP: 421, EndSP: 490, ColsPerRow: 5},
	{ID: 8, StartSP: 491, EndSP: 610, ColsPerRow: 5},
	{ID: 9, StartSP: 611, EndSP: 670, ColsPerRow: 5},
	{ID: 10, StartSP: 671, EndSP: 730, ColsPerRow: 5},
	{ID: 11, StartSP: 731, EndSP: 790, ColsPerRow: 5},
	{ID: 12, StartSP: 791, EndSP: 850, ColsPerRow: 5},
	{ID: 13, StartSP: 851, EndSP: 910, ColsPerRow: 5},
	{ID: 14, StartSP: 911, EndSP: 950, ColsPerRow: 4},
	{ID: 15, StartSP: 1001, EndSP: 1034, ColsPerRow: 3},
	{ID: 16, StartSP: 1051, EndSP: 1099, ColsPerRow: 6},
}

func truePtr() *bool {
	v := true
	return &v
}

// boolOr dereferences a *bool config field, treating an absent field (nil,
// meaning the key was never set in YAML) as def. Use this instead of a bare
// dereference anywhere one of these tri-state fields is read.
func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// applyDefaults fills every field left zero-valued after YAML unmarshalling
// with the project's defaults. Unlike the original, which applies defaults
// with setdefault at first use, this runs once at load time (spec §9,
// "Dynamic typing in config"): by the time Load returns, every field below
// is always populated. Booleans that default to true use *bool so an
// explicit `false` in the file is distinguishable from an absent key.
func applyDefaults(cfg *Config) {
	if cfg.Comm.EnableHeartbeat == nil {
		cfg.Comm.EnableHeartbeat = truePtr()
	}
	if cfg.Comm.HeartbeatIntervalSeconds == 0 {
		cfg.Comm.HeartbeatIntervalSeconds = 10
	}
	if cfg.Comm.OfflineFailureThreshold == 0 {
		cfg.Comm.OfflineFailureThreshold = 10
	}
	if cfg.Comm.DuplicateAckMode == "" {
		cfg.Comm.DuplicateAckMode = "duplicate_code"
	}
	if cfg.Comm.BytesPerFrame == 0 {
		cfg.Comm.BytesPerFrame = 512
	}
	if cfg.Comm.AckTimeoutMs == 0 {
		cfg.Comm.AckTimeoutMs = 1000
	}
	if cfg.Comm.CmdTimeoutMs == 0 {
		cfg.Comm.CmdTimeoutMs = 2000
	}
	if cfg.Comm.InterFrameGapMs == 0 {
		cfg.Comm.InterFrameGapMs = 10
	}
	if cfg.Comm.Retry.Enabled == nil {
		cfg.Comm.Retry.Enabled = truePtr()
	}
	if cfg.Comm.Retry.AckTimeoutMs == 0 {
		cfg.Comm.Retry.AckTimeoutMs = 300
	}
	if cfg.Comm.Retry.MaxAttempts == 0 {
		cfg.Comm.Retry.MaxAttempts = 3
	}
	if cfg.Comm.Retry.BackoffMs == 0 {
		cfg.Comm.Retry.BackoffMs = 50
	}

	if len(cfg.Dispatcher.ColorOrder) == 0 {
		cfg.Dispatcher.ColorOrder = []string{"R", "G", "B"}
	}

	if cfg.Grouping.DoneDir == "" {
		cfg.Grouping.DoneDir = "data/done"
	}
	if cfg.Grouping.ErrorDir == "" {
		cfg.Grouping.ErrorDir = "data/error"
	}
	if cfg.Grouping.WatchDir == "" {
		cfg.Grouping.WatchDir = "data/watch"
	}
	if cfg.Grouping.WorkDir == "" {
		cfg.Grouping.WorkDir = "data/work"
	}
	if len(cfg.Grouping.ColorOrder) == 0 {
		cfg.Grouping.ColorOrder = []string{"R", "G", "B"}
	}
	if cfg.Grouping.NameTagRegex == "" {
		cfg.Grouping.NameTagRegex = `^(?P<a>[^-]+)(?:-(?P<b>[^-]+))?-(?P<tag>N[0-9]+)$`
	}

	if len(cfg.Ingress.AllowedExtensions) == 0 {
		cfg.Ingress.AllowedExtensions = []string{".txt", ".jpg", ".jpeg"}
	}
	if cfg.Ingress.AtomicPairSuffixes.PartSuffix == "" {
		cfg.Ingress.AtomicPairSuffixes.PartSuffix = ".part"
	}
	if cfg.Ingress.AtomicPairSuffixes.LockSuffix == "" {
		cfg.Ingress.AtomicPairSuffixes.LockSuffix = ".pairlock"
	}
	if cfg.Ingress.AtomicPairEnabled == nil {
		cfg.Ingress.AtomicPairEnabled = truePtr()
	}

	if cfg.Parsing.RowPattern == "" {
		cfg.Parsing.RowPattern = `^\s*(?:\d+)\s+([A-Za-z]+)(\d+)\s+([\d]+(?:\.\d+)?)\s*%\s*$`
	}
	if cfg.Parsing.AltRowPattern == "" {
		cfg.Parsing.AltRowPattern = `^\s*([A-Za-z]+)(\d+)\s+([\d]+(?:\.\d+)?)\s*%\s*$`
	}
	if len(cfg.Parsing.HeaderKeywords) == 0 {
		cfg.Parsing.HeaderKeywords = []string{"编号", "名称", "百分"}
	}
	if len(cfg.Parsing.AllowedCodePrefix) == 0 {
		cfg.Parsing.AllowedCodePrefix = []string{"SP", "X"}
	}

	if cfg.SPMapping.BlockSize == 0 {
		cfg.SPMapping.BlockSize = 100
	}
	if len(cfg.SPMapping.Groups) == 0 {
		cfg.SPMapping.Groups = defaultGroups
	}
	if cfg.SPMapping.LedsPerSlot == 0 {
		cfg.SPMapping.LedsPerSlot = 3
	}
	if cfg.SPMapping.StartCorner == "" {
		cfg.SPMapping.StartCorner = "TL"
	}
	if cfg.SPMapping.RowDirectionEven == "" {
		cfg.SPMapping.RowDirectionEven = "LR"
	}
	if cfg.SPMapping.RowDirectionOdd == "" {
		cfg.SPMapping.RowDirectionOdd = "RL"
	}

	if cfg.Display.BlinkEnabled == nil {
		cfg.Display.BlinkEnabled = truePtr()
	}
	if cfg.Display.BlinkThresholdPercent == 0 {
		cfg.Display.BlinkThresholdPercent = 10
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "logs/app.log"
	}
	if cfg.Logging.DeviceInfoFile == "" {
		cfg.Logging.DeviceInfoFile = "logs/device-info.log"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "%(asctime)s %(levelname)s %(name)s - %(message)s"
	}
	if cfg.Logging.DeviceInfoFormat == "" {
		cfg.Logging.DeviceInfoFormat = "%(asctime)s %(message)s"
	}
	if cfg.Logging.Rotate.Enabled == nil {
		cfg.Logging.Rotate.Enabled = truePtr()
	}
	if cfg.Logging.Rotate.MaxBytes == 0 {
		cfg.Logging.Rotate.MaxBytes = 1048576
	}
	if cfg.Logging.Rotate.BackupCount == 0 {
		cfg.Logging.Rotate.BackupCount = 3
	}
	if cfg.Logging.Hex.MaxBytes == 0 {
		cfg.Logging.Hex.MaxBytes = 1024
	}

	if cfg.Printing.Columns == 0 {
		cfg.Printing.Columns = 2
	}
	if cfg.Printing.ColumnSeparator == "" {
		cfg.Printing.ColumnSeparator = " | "
	}
}
