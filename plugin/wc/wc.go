// Package main holds the word count callbacks for the BWbwchen/MapReduce
// framework. Build it with
//
//	go build -buildmode=plugin -o wc.so ./plugin/wc
//
// and hand wc.so to the framework's coordinator.
package main

import (
	"fmt"
	"strconv"

	"github.com/BWbwchen/MapReduce/worker"

	"github.com/tequalsme/hadoop-examples/wordcount"
)

var (
	mapper  = wordcount.MakeWordCountMapper(nil)
	reducer = wordcount.SumReducer{}
)

func Map(filename string, contents string, ctx worker.MrContext) {
	emitWords(contents, ctx.EmitIntermediate)
}

func Reduce(key string, values []string, ctx worker.MrContext) {
	ctx.Emit(sumValues(key, values))
}

func emitWords(contents string, emit func(key, value string)) {
	for p := range mapper.Map(&wordcount.Record{Text: contents}) {
		emit(p.Key, strconv.Itoa(p.Value))
	}
}

// sumValues adds up the intermediate counts of key. Every value was written
// by emitWords, so one that is not an integer means corrupted input.
func sumValues(key string, values []string) (string, string) {
	counts := make([]int, len(values))
	for i, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(wordcount.PreconditionError{
				Op:     "Reduce",
				Reason: fmt.Sprintf("value %q of key %q is not a count", v, key),
			})
		}
		counts[i] = n
	}
	return key, strconv.Itoa(reducer.Reduce(key, counts).Total)
}

func main() {}
