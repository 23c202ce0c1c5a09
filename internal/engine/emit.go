package engine

import "strings"

const (
	silenceThresholdMS  = 2200
	confidenceMargin    = 4.0
	punctLoosenMargin   = 3.5
	emissionDecayWindow = 3000.0
)

// onLogits runs the greedy emission policy for one joiner output,
// advancing the session's token context, active-token buffer, and time
// accounting, and invoking the user handler as needed. earlyEmit is the
// caller-supplied bias for this joiner iteration (subtracted from the
// blank logit), overridden to zero when the top candidate repeats the
// previous non-blank token.
func (s *Session) onLogits(earlyEmit float32) {
	logits := s.tensors.logits
	blankID := s.model.params.BlankID
	blankVal := logits[blankID]

	maxIdx, maxVal := argmaxExcluding(logits, blankID)

	isEqualToPrevious := maxIdx == s.tensors.tokenCtx[1]
	if isEqualToPrevious {
		earlyEmit = 0
	}

	isBlank := (blankVal - earlyEmit) > maxVal

	candidateText := s.vocabText(maxIdx)
	isWordBoundary := strings.HasPrefix(candidateText, " ")
	isPunct := candidateText == "." || candidateText == "!" || candidateText == "?"
	isSentenceEnd := isPunct && !prevStartsWithDigit(s.prevTokenText())

	if isPunct && !isEqualToPrevious && maxVal > blankVal-punctLoosenMargin && s.tensors.tokenCtx[1] != blankID {
		isBlank = false
	}

	if !isBlank {
		s.emitNonBlank(maxIdx, candidateText, isWordBoundary, isSentenceEnd, maxVal)
		return
	}

	flags := TokenFlag(0)
	if isWordBoundary {
		flags |= FlagWordBoundary
	}
	if isSentenceEnd {
		flags |= FlagSentenceEnd
	}
	candidate := Token{ID: maxIdx, Text: candidateText, LogProb: maxVal, Flags: flags, TimeMS: s.currentTimeMS}
	s.emitBlank(candidate, maxVal, blankVal, isEqualToPrevious)
}

func argmaxExcluding(logits []float32, excludeID int32) (int32, float32) {
	var maxIdx int32 = -1
	var maxVal float32
	for i, v := range logits {
		if int32(i) == excludeID {
			continue
		}
		if maxIdx == -1 || v > maxVal {
			maxIdx = int32(i)
			maxVal = v
		}
	}
	return maxIdx, maxVal
}

func (s *Session) vocabText(id int32) string {
	vocab := s.model.params.Vocabulary
	if id < 0 || int(id) >= len(vocab) {
		return ""
	}
	return vocab[id]
}

func (s *Session) prevTokenText() string {
	if s.activeTokenHead == 0 {
		return ""
	}
	return s.activeTokens[s.activeTokenHead-1].Text
}

func prevStartsWithDigit(text string) bool {
	trimmed := strings.TrimLeft(text, " ")
	if trimmed == "" {
		return false
	}
	c := trimmed[0]
	return c >= '0' && c <= '9'
}

func (s *Session) emitNonBlank(id int32, text string, isWordBoundary, isSentenceEnd bool, logProb float32) {
	s.lastEmissionTimeMS = s.currentTimeMS

	s.tensors.tokenCtx[0] = s.tensors.tokenCtx[1]
	s.tensors.tokenCtx[1] = id
	s.tensors.requiresDecoding = true

	if s.activeTokenHead >= MaxActiveTokens-1 {
		s.finalizePreviousWords(isWordBoundary)
		if s.activeTokenHead >= MaxActiveTokens-1 {
			s.activeTokens = s.activeTokens[:0]
			s.activeTokenHead = 0
		}
	}
	if s.activeTokenHead > 0 && s.activeTokens[s.activeTokenHead-1].isSentenceEnd() && isWordBoundary {
		s.finalizePreviousWords(true)
	}

	flags := TokenFlag(0)
	if isWordBoundary {
		flags |= FlagWordBoundary
	}
	if isSentenceEnd {
		flags |= FlagSentenceEnd
	}
	tok := Token{ID: id, Text: text, LogProb: logProb, Flags: flags, TimeMS: s.currentTimeMS}
	s.appendActiveToken(tok)

	s.callPartial(false)
	s.emittedSilence = false
}

func (s *Session) emitBlank(candidate Token, maxVal, blankVal float32, isEqualToPrevious bool) {
	timeSinceEmission := float32(s.currentTimeMS - s.lastEmissionTimeMS)
	maxVal -= timeSinceEmission / emissionDecayWindow

	if timeSinceEmission >= silenceThresholdMS {
		s.finalizeAll()
		if !s.emittedSilence {
			s.config.Handler(KindSilence, nil)
			s.emittedSilence = true
		}
		return
	}

	if !isEqualToPrevious && maxVal > blankVal-confidenceMargin {
		s.emitTentative(candidate)
		return
	}

	s.callPartial(false)
}

// emitTentative shows a low-confidence candidate to the user without
// committing it: the token is appended, the callback fires, and
// active_token_head is restored so the candidate does not persist across
// calls.
func (s *Session) emitTentative(candidate Token) {
	head := s.activeTokenHead
	s.appendActiveToken(candidate)
	s.callPartial(true)
	s.activeTokenHead = head
	s.activeTokens = s.activeTokens[:head]
}

func (s *Session) appendActiveToken(tok Token) {
	if s.activeTokenHead < len(s.activeTokens) {
		s.activeTokens[s.activeTokenHead] = tok
	} else {
		s.activeTokens = append(s.activeTokens, tok)
	}
	s.activeTokenHead++
}

// callPartial invokes the handler with PartialRecognition over the
// current active-tokens prefix, skipping the call when it would be
// identical to the last one delivered (same head, same last token id)
// unless force is set.
func (s *Session) callPartial(force bool) {
	lastID := s.model.params.BlankID
	if s.activeTokenHead > 0 {
		lastID = s.activeTokens[s.activeTokenHead-1].ID
	}
	if !force && s.activeTokenHead == s.lastHandlerHead && lastID == s.lastHandlerLastID {
		return
	}
	s.config.Handler(KindPartialRecognition, s.activeTokens[:s.activeTokenHead])
	s.lastHandlerHead = s.activeTokenHead
	s.lastHandlerLastID = lastID
}

// finalizePreviousWords implements the word-boundary-aware finalize used
// while appending a new non-blank token: a WORD_BOUNDARY candidate
// finalizes and clears everything before it; otherwise the current
// (incomplete) word is preserved at the start of the buffer and the rest
// is finalized.
func (s *Session) finalizePreviousWords(incomingIsWordBoundary bool) {
	if s.activeTokenHead == 0 {
		return
	}
	if incomingIsWordBoundary {
		s.emitFinal(s.activeTokens[:s.activeTokenHead])
		s.activeTokens = s.activeTokens[:0]
		s.activeTokenHead = 0
		return
	}

	wordStart := -1
	for i := s.activeTokenHead - 1; i >= 2; i-- {
		if s.activeTokens[i].isWordBoundary() {
			wordStart = i
			break
		}
	}
	if wordStart == -1 {
		s.emitFinal(s.activeTokens[:s.activeTokenHead])
		s.activeTokens = s.activeTokens[:0]
		s.activeTokenHead = 0
		return
	}

	s.emitFinal(s.activeTokens[:wordStart])
	n := copy(s.activeTokens, s.activeTokens[wordStart:s.activeTokenHead])
	s.activeTokens = s.activeTokens[:n]
	s.activeTokenHead = n
}

// finalizeAll finalizes the entire active-token buffer unconditionally,
// clears it, and resets the token context to blank. Used by silence
// detection and by Flush.
func (s *Session) finalizeAll() {
	if s.activeTokenHead > 0 {
		s.emitFinal(s.activeTokens[:s.activeTokenHead])
	}
	s.activeTokens = s.activeTokens[:0]
	s.activeTokenHead = 0
	s.lastHandlerHead = 0
	s.lastHandlerLastID = s.model.params.BlankID

	s.tensors.tokenCtx[0] = s.model.params.BlankID
	s.tensors.tokenCtx[1] = s.model.params.BlankID
	s.tensors.requiresDecoding = true
}

func (s *Session) emitFinal(tokens []Token) {
	if len(tokens) == 0 {
		return
	}
	s.config.Handler(KindFinalRecognition, tokens)
}

// finalizeAndClear is the flush-time variant: finalize the whole buffer,
// clear the context, and optionally emit a Silence callback.
func (s *Session) finalizeAndClear(emitSilence bool) {
	s.finalizeAll()
	if emitSilence && !s.emittedSilence {
		s.config.Handler(KindSilence, nil)
		s.emittedSilence = true
	}
}
