package anylist

import "github.com/alexa2anylist/alexa2anylist/internal/types"

// Wire shapes for the AnyList API. Fields beyond identifier, name and
// checked ride along untouched.

type userDataResponse struct {
	ShoppingListsResponse struct {
		NewLists []wireList `json:"newLists"`
	} `json:"shoppingListsResponse"`
}

type wireList struct {
	Identifier string     `json:"identifier"`
	Name       string     `json:"name"`
	Creator    string     `json:"creator"`
	Items      []wireItem `json:"items"`
}

type wireItem struct {
	Identifier      string `json:"identifier"`
	ListID          string `json:"listId,omitempty"`
	Name            string `json:"name"`
	Checked         bool   `json:"checked"`
	Quantity        string `json:"quantity,omitempty"`
	Details         string `json:"details,omitempty"`
	UserID          string `json:"userId,omitempty"`
	CategoryMatchID string `json:"categoryMatchId,omitempty"`
}

func (w wireItem) toItem() types.Item {
	return types.Item{
		ID:              w.Identifier,
		Name:            w.Name,
		Checked:         w.Checked,
		Quantity:        w.Quantity,
		Details:         w.Details,
		CategoryMatchID: w.CategoryMatchID,
	}
}

func wireItemFrom(it types.Item, listID, userID string) *wireItem {
	return &wireItem{
		Identifier:      it.ID,
		ListID:          listID,
		Name:            it.Name,
		Checked:         it.Checked,
		Quantity:        it.Quantity,
		Details:         it.Details,
		UserID:          userID,
		CategoryMatchID: it.CategoryMatchID,
	}
}

type listOperation struct {
	ListID       string            `json:"listId"`
	ListItemID   string            `json:"listItemId,omitempty"`
	UpdatedValue string            `json:"updatedValue,omitempty"`
	Item         *wireItem         `json:"listItem,omitempty"`
	Metadata     operationMetadata `json:"metadata"`
}

type operationMetadata struct {
	OperationID string `json:"operationId"`
	HandlerID   string `json:"handlerId"`
	UserID      string `json:"userId"`
}

type operationList struct {
	Operations []listOperation `json:"operations"`
}
