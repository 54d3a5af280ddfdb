package main

import "time"

type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=3001"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`

	HistoryLimit   int           `env:"HISTORY_LIMIT,default=100"`
	PersistTimeout time.Duration `env:"PERSIST_TIMEOUT,default=5s"`

	TypingTTL           time.Duration `env:"TYPING_TTL,default=3s"`
	TypingSweepInterval time.Duration `env:"TYPING_SWEEP_INTERVAL,default=30s"`

	SendBufferSize int           `env:"SEND_BUFFER_SIZE,default=256"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT,default=5m"`
	AllowedOrigins string        `env:"ALLOWED_ORIGINS,default=localhost:5173"`
}
