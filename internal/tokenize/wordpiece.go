package tokenize

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// wordPieceTokenizer is a minimal pure-Go WordPiece tokenizer used when a
// checkpoint ships vocab.txt instead of a HuggingFace tokenizer.json.
type wordPieceTokenizer struct {
	vocab     map[string]int64
	unkID     int64
	clsID     int64
	sepID     int64
	maxSeqLen int
}

var wordRe = regexp.MustCompile(`[\w]+|[^\s\w]`)

func loadWordPiece(vocabPath string, maxSeqLen int) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}

	vocab := make(map[string]int64)
	for i, line := range strings.Split(string(data), "\n") {
		tok := strings.TrimSpace(line)
		if tok == "" {
			continue
		}
		vocab[tok] = int64(i)
	}

	unkID, ok := vocab["[UNK]"]
	if !ok {
		return nil, fmt.Errorf("vocab missing [UNK]")
	}
	clsID, ok := vocab["[CLS]"]
	if !ok {
		return nil, fmt.Errorf("vocab missing [CLS]")
	}
	sepID, ok := vocab["[SEP]"]
	if !ok {
		return nil, fmt.Errorf("vocab missing [SEP]")
	}

	return &wordPieceTokenizer{
		vocab:     vocab,
		unkID:     unkID,
		clsID:     clsID,
		sepID:     sepID,
		maxSeqLen: maxSeqLen,
	}, nil
}

// encode returns input_ids and attention_mask, both length maxSeqLen,
// special tokens added, right-padded with zeros.
func (t *wordPieceTokenizer) encode(text string) (ids, mask []int64) {
	tokens := t.tokenize(text)
	maxTokens := t.maxSeqLen - 2
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}

	ids = make([]int64, t.maxSeqLen)
	mask = make([]int64, t.maxSeqLen)

	ids[0] = t.clsID
	mask[0] = 1
	for i, tok := range tokens {
		id, ok := t.vocab[tok]
		if !ok {
			id = t.unkID
		}
		ids[i+1] = id
		mask[i+1] = 1
	}
	ids[len(tokens)+1] = t.sepID
	mask[len(tokens)+1] = 1
	return ids, mask
}

func (t *wordPieceTokenizer) tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	for _, word := range wordRe.FindAllString(text, -1) {
		tokens = append(tokens, t.wordpiece(word)...)
	}
	return tokens
}

func (t *wordPieceTokenizer) wordpiece(word string) []string {
	if word == "" {
		return nil
	}
	if _, ok := t.vocab[word]; ok {
		return []string{word}
	}

	var tokens []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		var cur string
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				cur = sub
				found = true
				break
			}
			end--
		}
		if !found {
			if start > 0 {
				tokens = append(tokens, "##"+string(word[start]))
			} else {
				tokens = append(tokens, string(word[start]))
			}
			start++
		} else {
			tokens = append(tokens, cur)
			start = end
		}
	}
	return tokens
}
