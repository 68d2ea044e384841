package main

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/gin-gonic/gin"

	"recon-engine/api/handler"
	"recon-engine/api/router"
	"recon-engine/job"
	"recon-engine/logic/chat"
	"recon-engine/logic/ingestion/transform"
	"recon-engine/service"
	"recon-engine/storage/es"
	"recon-engine/storage/milvus"
	"recon-engine/storage/postgres"
	"recon-engine/vars"
)

func main() {
	ctx := context.Background()

	// 1. 初始化 DB
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		vars.PGHOST, vars.PGUSER, vars.PGPWD, vars.PGDB, vars.PGPORT)
	db, err := postgres.InitDB(dsn)
	if err != nil {
		panic(err)
	}
	repo, err := postgres.NewRepo(db)
	if err != nil {
		panic(err)
	}

	// 2. 初始化 LLM：配了 OpenAI key 就走 OpenAI，否则本地 Ollama
	var chatModel model.ToolCallingChatModel
	if vars.OPENAI_KEY != "" {
		chatModel = chat.CreateOpenAIChatModel(ctx, vars.OPENAI_KEY, vars.OPENAI_BASE, vars.GPT4OMN)
		log.Println("✅ 使用 OpenAI 模型:", vars.GPT4OMN)
	} else {
		chatModel = chat.CreateOllamaChatModel(ctx, vars.OLLAMA_PATH, vars.QWEN7B)
		log.Println("✅ 使用 Ollama 模型:", vars.QWEN7B)
	}

	rawEmbedder, err := transform.NewEmbedder(ctx, vars.OLLAMA_PATH, vars.BGEM3)
	if err != nil {
		panic(err)
	}
	embedder := transform.NewCleanEmbedder(rawEmbedder)

	// 3. 初始化 Milvus：条款集合 + 条款库集合共用一个连接
	milvusClient, err := milvus.NewClient(ctx, vars.MILVUSADDR)
	if err != nil {
		panic(fmt.Sprintf("Milvus 连接失败:%v", err))
	}
	clauseIdx, err := milvus.NewClauseIndexer(ctx, milvusClient, embedder, vars.CLAUSECOLLECTION)
	if err != nil {
		panic(fmt.Sprintf("Milvus 条款集合初始化失败:%v", err))
	}
	libraryIdx, err := milvus.NewLibraryIndexer(ctx, milvusClient, embedder, vars.LIBRARYCOLLECTION)
	if err != nil {
		panic(fmt.Sprintf("Milvus 条款库初始化失败:%v", err))
	}

	esIndexer, err := es.NewESIndexer([]string{vars.ESADDR}, vars.ESCLAUSEINDEX)
	if err != nil {
		panic(err)
	}

	// 4. 初始化 Service (业务层)
	ingestionSvc := service.NewIngestionService(repo, chatModel, embedder, clauseIdx, libraryIdx, esIndexer, milvusClient)
	reconSvc := service.NewReconService(repo, chatModel)
	searchSvc := service.NewSearchService(embedder, milvusClient, esIndexer.GetClient())

	// 启动定时任务：轮询待核对文档
	job.StartCronJob(repo, reconSvc)

	// 5. 初始化 Handler (API 层)
	reconHandler := handler.NewReconHandler(ingestionSvc, reconSvc, searchSvc, repo)

	// 6. 启动 Web Server
	r := gin.Default()
	router.RegisterRoutes(r, reconHandler)

	log.Println("Server running on :8081")
	r.Run(":8081")
}
