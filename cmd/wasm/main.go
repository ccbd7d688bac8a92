//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/extract"
	"docqa/internal/adapter/llm"
	"docqa/internal/adapter/memstore"
	"docqa/internal/usecase"
)

const (
	dimension    = 384
	chunkSize    = 800
	overlap      = 100
	promptTokens = 3000
	defaultTopK  = 5
)

var session *usecase.Session

func newSession() (*usecase.Session, error) {
	embedder, err := embedding.NewHashingEmbedder(dimension)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.NewRecursiveChunker(chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	index, err := memstore.NewVectorIndex(dimension)
	if err != nil {
		return nil, err
	}
	counter, _ := analyzer.NewTokenCounter("heuristic")
	composer, err := usecase.NewComposer(llm.NewExtractiveGenerator(3), counter, usecase.ComposerOptions{
		PromptTokenBudget: promptTokens,
	}, nil)
	if err != nil {
		return nil, err
	}
	return usecase.NewSession(usecase.Deps{
		Extractor: extract.New(nil),
		Chunker:   ch,
		Embedder:  embedder,
		Index:     index,
		Composer:  composer,
	}, usecase.SessionOptions{DefaultTopK: defaultTopK})
}

func main() {
	var err error
	session, err = newSession()
	if err != nil {
		panic(err)
	}

	c := make(chan struct{})

	js.Global().Set("docqaIngest", js.FuncOf(ingestContent))
	js.Global().Set("docqaAsk", js.FuncOf(askQuestion))
	js.Global().Set("docqaClear", js.FuncOf(clearCorpus))
	js.Global().Set("docqaStats", js.FuncOf(getStats))

	<-c
}

func ingestContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeError("usage: docqaIngest(filename, content)")
	}

	res, err := session.IngestText(context.Background(), args[0].String(), args[1].String())
	if err != nil {
		return makeError("ingest failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"success":    true,
		"documentId": res.DocumentID,
		"chunks":     res.Chunks,
		"unchanged":  res.Unchanged,
		"replaced":   res.Replaced,
	})
}

func askQuestion(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: docqaAsk(question, [topK])")
	}

	topK := 0
	if len(args) > 1 {
		topK = args[1].Int()
	}

	answer, err := session.Ask(context.Background(), args[0].String(), topK)
	if err != nil {
		return makeError("ask failed: " + err.Error())
	}
	result, _ := json.Marshal(answer)
	return string(result)
}

func clearCorpus(this js.Value, args []js.Value) interface{} {
	if err := session.ClearCorpus(); err != nil {
		return makeError(err.Error())
	}
	return makeResult(map[string]interface{}{
		"success": true,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	result, _ := json.Marshal(session.CorpusStats())
	return string(result)
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
