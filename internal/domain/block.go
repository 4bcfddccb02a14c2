package domain

// Block is a mined block header with the hashes of its transactions.
type Block struct {
	Number     uint64
	Hash       string
	ParentHash string
	Timestamp  uint64
	Miner      string
	GasUsed    uint64
	GasLimit   uint64
	TxCount    int
	Size       uint64
	TxHashes   []string
}
