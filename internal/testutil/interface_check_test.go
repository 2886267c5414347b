package testutil

import (
	"github.com/veridex/veridex/internal/testutil/mockembedder"
	"github.com/veridex/veridex/internal/testutil/mockstore"
	"github.com/veridex/veridex/internal/testutil/mockworkflow"
	"github.com/veridex/veridex/rag/embedding"
	"github.com/veridex/veridex/rag/vectorstore"
	"github.com/veridex/veridex/workflow"
)

// Compile-time interface checks to ensure mocks implement their target interfaces.
var (
	_ embedding.Embedder      = (*mockembedder.MockEmbedder)(nil)
	_ vectorstore.VectorStore = (*mockstore.MockVectorStore)(nil)
	_ workflow.WorkflowStore  = (*mockworkflow.MockWorkflowStore)(nil)
)
