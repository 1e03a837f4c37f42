package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/agentchat/internal/model"
	"github.com/agentchat/internal/repository"
	"github.com/go-chi/chi/v5"
)

const (
	// предохранитель от циклов в цепочке reply_to
	maxRootWalk    = 100
	maxThreadDepth = 50
)

type ThreadHandler struct {
	msgs *repository.MessageRepository
}

func NewThreadHandler(msgs *repository.MessageRepository) *ThreadHandler {
	return &ThreadHandler{msgs: msgs}
}

// Get возвращает весь тред, которому принадлежит сообщение: подъём к корню
// по цепочке reply_to, затем обход ответов в ширину.
func (h *ThreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.msgs.GetByID(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		repoError(w, err, "message not found")
		return
	}

	root, err := h.walkToRoot(r.Context(), m)
	if err != nil {
		repoError(w, err, "message not found")
		return
	}

	node, err := h.assemble(r.Context(), *root, 0)
	if err != nil {
		repoError(w, err, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (h *ThreadHandler) walkToRoot(ctx context.Context, m *model.Message) (*model.Message, error) {
	cur := m
	for i := 0; i < maxRootWalk && cur.ReplyToID != nil; i++ {
		parent, err := h.msgs.GetByID(ctx, *cur.ReplyToID)
		if errors.Is(err, repository.ErrNotFound) {
			// родитель удалён или потерян, этот узел и есть вершина
			return cur, nil
		}
		if err != nil {
			return nil, err
		}
		cur = parent
	}
	return cur, nil
}

func (h *ThreadHandler) assemble(ctx context.Context, m model.Message, depth int) (model.ThreadNode, error) {
	node := model.ThreadNode{Message: m, Depth: depth}
	if depth >= maxThreadDepth {
		return node, nil
	}
	replies, err := h.msgs.Replies(ctx, m.ID)
	if err != nil {
		return node, err
	}
	for _, reply := range replies {
		child, err := h.assemble(ctx, reply, depth+1)
		if err != nil {
			return node, err
		}
		node.Replies = append(node.Replies, child)
	}
	return node, nil
}
