package ai

// ComputeCost derives dollar Cost from accumulated Usage token counts and a
// Model's per-million-token rate table:
// cost = input*Ci + output*Co + cache_read*Cr + cache_write*Cw.
func ComputeCost(usage Usage, rates Cost) Cost {
	const perMillion = 1_000_000.0
	c := Cost{
		Input:      float64(usage.InputTokens) / perMillion * rates.Input,
		Output:     float64(usage.OutputTokens) / perMillion * rates.Output,
		CacheRead:  float64(usage.CacheReadTokens) / perMillion * rates.CacheRead,
		CacheWrite: float64(usage.CacheWriteTokens) / perMillion * rates.CacheWrite,
	}
	c.Total = c.Input + c.Output + c.CacheRead + c.CacheWrite
	return c
}

// FinalizeUsage sets usage.Cost from the model's rate table. Adapters call
// this once, immediately before pushing DoneEvent.
func FinalizeUsage(usage *Usage, model Model) {
	usage.Cost = ComputeCost(*usage, model.Cost)
}
