// Package terminal speaks the HTTP management API of a biometric terminal:
// user records, face templates and access-group membership. Every call is
// digest-authenticated with the device's own credentials.
package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/icholy/digest"
	"go.uber.org/zap"
)

const (
	metadataTimeout = 5 * time.Second
	uploadTimeout   = 15 * time.Second
)

type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

func NewClient(addr, username, password string, log *zap.Logger) *Client {
	return &Client{
		base: "http://" + addr,
		http: &http.Client{
			Transport: &digest.Transport{Username: username, Password: password},
		},
		log: log,
	}
}

type userInfoPayload struct {
	UserInfo userInfo `json:"UserInfo"`
}

type userInfo struct {
	EmployeeNo string     `json:"employeeNo"`
	Name       string     `json:"name,omitempty"`
	UserType   string     `json:"userType,omitempty"`
	Valid      *validSpan `json:"Valid,omitempty"`
	RightPlan  []doorPlan `json:"RightPlan,omitempty"`
}

type validSpan struct {
	Enable    bool   `json:"enable"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
}

type doorPlan struct {
	DoorNo         int    `json:"doorNo"`
	PlanTemplateNo string `json:"planTemplateNo"`
}

// DeleteUser removes any record the terminal holds for the account. Callers
// treat this as best-effort stale-state cleanup.
func (c *Client) DeleteUser(ctx context.Context, accountID string) error {
	body, _ := json.Marshal(map[string]any{
		"UserInfoDelCond": map[string]any{
			"EmployeeNoList": []map[string]string{{"employeeNo": accountID}},
		},
	})
	status, resp, err := c.do(ctx, http.MethodPut,
		"/ISAPI/AccessControl/UserInfo/Delete?format=json", body, metadataTimeout)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("delete user: status %d: %s", status, truncate(resp))
	}
	return nil
}

// EnsureUser creates the person record, falling back to modify when the
// terminal already knows the employee number.
func (c *Client) EnsureUser(ctx context.Context, accountID, name string) error {
	payload, _ := json.Marshal(userInfoPayload{UserInfo: userInfo{
		EmployeeNo: accountID,
		Name:       name,
		UserType:   "normal",
		Valid: &validSpan{
			Enable:    true,
			BeginTime: "2024-01-01T00:00:00",
			EndTime:   "2035-01-01T00:00:00",
		},
	}})

	status, resp, err := c.do(ctx, http.MethodPost,
		"/ISAPI/AccessControl/UserInfo/Record?format=json", payload, metadataTimeout)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if status == http.StatusOK {
		return nil
	}
	if !strings.Contains(string(resp), "employeeNoAlreadyExist") {
		return fmt.Errorf("create user: status %d: %s", status, truncate(resp))
	}
	c.log.Debug("user record exists, modifying", zap.String("account_id", accountID))

	status, resp, err = c.do(ctx, http.MethodPut,
		"/ISAPI/AccessControl/UserInfo/Modify?format=json", payload, metadataTimeout)
	if err != nil {
		return fmt.Errorf("modify user: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("modify user: status %d: %s", status, truncate(resp))
	}
	return nil
}

// UploadFace pushes the face template as a multipart record.
func (c *Client) UploadFace(ctx context.Context, accountID string, image []byte) error {
	record, _ := json.Marshal(map[string]string{
		"faceLibType": "blackFD",
		"FDID":        "1",
		"FPID":        accountID,
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := writeJSONPart(mw, "FaceDataRecord", record); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("img", "face.jpg")
	if err != nil {
		return err
	}
	if _, err := fw.Write(image); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/ISAPI/Intelligent/FDLib/FaceDataRecord?format=json", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload face: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	var result struct {
		StatusCode   int    `json:"statusCode"`
		StatusString string `json:"statusString"`
	}
	if err := json.Unmarshal(raw, &result); err == nil && result.StatusCode == 1 {
		return nil
	}
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return fmt.Errorf("upload face: status %d: %s", resp.StatusCode, truncate(raw))
}

// AssignAccessGroup binds the person to the default door plan so a fresh
// enrollment is authorized immediately. Best-effort on the caller's side.
func (c *Client) AssignAccessGroup(ctx context.Context, accountID string) error {
	payload, _ := json.Marshal(userInfoPayload{UserInfo: userInfo{
		EmployeeNo: accountID,
		RightPlan:  []doorPlan{{DoorNo: 1, PlanTemplateNo: "1"}},
	}})
	status, resp, err := c.do(ctx, http.MethodPut,
		"/ISAPI/AccessControl/UserInfo/Modify?format=json", payload, metadataTimeout)
	if err != nil {
		return fmt.Errorf("assign access group: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("assign access group: status %d: %s", status, truncate(resp))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, nil
}

func writeJSONPart(mw *multipart.Writer, field string, value []byte) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, field))
	h.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(value)
	return err
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
