package study

import (
	"fmt"
	"strconv"

	"github.com/parkerlabs/dilemma/internal/dataset"
)

// LoadTradeoffsCSV reads a trade-off pair pool from a CSV file with columns
// id, option_a, option_b.
func LoadTradeoffsCSV(path string) ([]Tradeoff, error) {
	rows, err := dataset.LoadCSV(path)
	if err != nil {
		return nil, err
	}

	items := make([]Tradeoff, 0, len(rows))
	for i, row := range rows {
		t := Tradeoff{
			ID:      row["id"],
			OptionA: row["option_a"],
			OptionB: row["option_b"],
		}
		if t.ID == "" || t.OptionA == "" || t.OptionB == "" {
			return nil, fmt.Errorf("tradeoffs csv %s: row %d is missing id, option_a, or option_b", path, i+2)
		}
		items = append(items, t)
	}
	return items, nil
}

// LoadAnagramsCSV reads an anagram pool from a CSV file with columns
// id, letters, solvable, answer.
func LoadAnagramsCSV(path string) ([]Anagram, error) {
	rows, err := dataset.LoadCSV(path)
	if err != nil {
		return nil, err
	}

	items := make([]Anagram, 0, len(rows))
	for i, row := range rows {
		a := Anagram{
			ID:      row["id"],
			Letters: row["letters"],
			Answer:  row["answer"],
		}
		if a.ID == "" || a.Letters == "" {
			return nil, fmt.Errorf("anagrams csv %s: row %d is missing id or letters", path, i+2)
		}
		if raw := row["solvable"]; raw != "" {
			solvable, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("anagrams csv %s: row %d has bad solvable value %q", path, i+2, raw)
			}
			a.Solvable = solvable
		}
		items = append(items, a)
	}
	return items, nil
}
