package jobs

import "fmt"

// splitBytes cuts data into ceil(len(data)/limit) pieces, each at most
// limit bytes. The downstream consumer concatenates the chunks back
// before decoding, so cutting mid-token is fine.
func splitBytes(data []byte, limit int) ([][]byte, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("chunk size limit must be positive, got %d", limit)
	}
	if len(data) == 0 {
		return [][]byte{nil}, nil
	}
	chunks := make([][]byte, 0, (len(data)+limit-1)/limit)
	for start := 0; start < len(data); start += limit {
		end := start + limit
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[start:end])
	}
	return chunks, nil
}
