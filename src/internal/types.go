package internal

import "time"

// ScanConfig 批量扫描配置
type ScanConfig struct {
	TargetSource  string // source | address | file | db
	SourceFile    string // -t=source 时的合约源码文件
	TargetFile    string // -t=file 时的地址列表文件
	TargetAddress string
	Chain         string
	Verbose       bool
	Timeout       time.Duration
	BlockRange    *BlockRange
	Proxy         string
	OutputDir     string
	Persist       bool
}

// BlockRange 起止区块范围
type BlockRange struct {
	Start uint64
	End   uint64
}

// Contract 待扫描的合约
type Contract struct {
	Address      string
	Code         string
	Chain        string
	IsOpenSource bool
}
