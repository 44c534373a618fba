package model

// Pool is the registration record stored once per pool.
type Pool struct {
	Protocol     string `json:"protocol"`
	Address      string `json:"address"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Fee          uint32 `json:"fee"`
	TickSpacing  int32  `json:"tick_spacing"`
	CreatedBlock uint64 `json:"created_block"`
	CreatedTx    string `json:"created_tx"`
}

// Tokens returns the pool's tokens in index order, skipping empty entries.
func (p Pool) Tokens() []string {
	tokens := make([]string, 0, 2)
	for _, t := range []string{p.Token0, p.Token1} {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
