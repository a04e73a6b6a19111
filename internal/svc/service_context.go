package svc

import (
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/nbeier/meetscribe/internal/config"
	"github.com/nbeier/meetscribe/internal/llm"
	"github.com/nbeier/meetscribe/internal/logger"
	"github.com/nbeier/meetscribe/internal/pipeline"
	"github.com/nbeier/meetscribe/internal/progress"
	"github.com/nbeier/meetscribe/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config       *config.Config
	DB           *sql.DB
	FileStore    *store.FileStore
	MeetingModel *store.MeetingModel
	Generator    llm.Generator
	Pipeline     *pipeline.Pipeline
}

func NewServiceContext(c *config.Config) *ServiceContext {
	db, err := store.OpenMeetingDB(filepath.Join(c.Store.DataDir, "meetings.db"))
	if err != nil {
		logger.Fatalf("failed to open meeting database, %v", err)
	}

	// Optional SOCKS5 proxy for reaching the inference endpoint.
	var httpClient *http.Client
	if c.Sock5Proxy.Enable {
		socks5Addr := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
		dialer, err := proxy.SOCKS5("tcp", socks5Addr, nil, proxy.Direct)
		if err != nil {
			logger.Fatalf("failed to create SOCKS5 proxy, %v", err)
		}
		httpClient = &http.Client{
			Transport: &http.Transport{
				Dial:            dialer.Dial,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	var generator llm.Generator
	if c.LLM.UseExternalAPI {
		generator = llm.NewOpenAIClient(&c.LLM, httpClient)
	} else {
		generator = llm.NewOllamaClient(&c.LLM, httpClient)
	}

	fileStore := store.NewFileStore(c.Store.DataDir)
	meetingModel := store.NewMeetingModel(db)

	svcCtx := &ServiceContext{
		Config:       c,
		DB:           db,
		FileStore:    fileStore,
		MeetingModel: meetingModel,
		Generator:    generator,
		Pipeline:     pipeline.New(&c.LLM, generator, fileStore, fileStore, meetingModel, progress.LogSink{}),
	}
	return svcCtx
}

func (svcCtx *ServiceContext) Close() {
	if err := svcCtx.DB.Close(); err != nil {
		logger.Errorf("failed to close meeting database, %v", err)
	}
}
