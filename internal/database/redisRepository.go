package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ds124wfegd/smartblood/internal/entity"

	"github.com/redis/go-redis/v9"
)

// Each record is a hash: the immutable part as JSON under "data" and the
// fields that change after creation as plain hash fields, so the Lua
// scripts below can compare-and-set them without decoding JSON.
const (
	fieldData          = "data"
	fieldStatus        = "status"
	fieldDonorID       = "donor_id"
	fieldDonorName     = "donor"
	fieldNotified      = "notified"
	fieldUpdatedAt     = "updated_at"
	fieldDonationCount = "donation_count"
	fieldRead          = "read"

	keyProfiles        = "profiles"
	keyRequests        = "requests"
	keyUnnotified      = "requests:unnotified"
	redisTimeLayout    = time.RFC3339Nano
	redisFlagTrue      = "1"
	redisFlagFalse     = "0"
	scriptResultAbsent = -1
)

func profileKey(id string) string      { return "profile:" + id }
func donorsKey(blood string) string    { return "donors:" + blood }
func requestKey(id string) string      { return "request:" + id }
func contactKey(contact string) string { return "requests:contact:" + contact }
func donorRequestKey(id string) string { return "donor_request:" + id }
func donorRequestsToKey(id string) string {
	return "donor_requests:to:" + id
}
func donorRequestsFromKey(id string) string {
	return "donor_requests:from:" + id
}
func notificationKey(recipientID, id string) string {
	return fmt.Sprintf("notification:%s:%s", recipientID, id)
}
func inboxKey(recipientID string) string { return "notifications:" + recipientID }

func score(t time.Time) float64 { return float64(t.UnixNano()) }

// statusScript: KEYS = record, credited profile, notification, inbox.
// ARGV = from, to, donor id, donor name, updated at, credit flag,
// notification json, notification score, notification id.
var statusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'status') ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'updated_at', ARGV[5])
if ARGV[3] ~= '' then
	local current = redis.call('HGET', KEYS[1], 'donor_id')
	if not current or current == '' then
		redis.call('HSET', KEYS[1], 'donor_id', ARGV[3], 'donor', ARGV[4])
	end
end
if ARGV[6] == '1' and redis.call('EXISTS', KEYS[2]) == 1 then
	redis.call('HINCRBY', KEYS[2], 'donation_count', 1)
end
if ARGV[7] ~= '' then
	if redis.call('HSETNX', KEYS[3], 'data', ARGV[7]) == 1 then
		redis.call('HSET', KEYS[3], 'read', '0')
		redis.call('ZADD', KEYS[4], ARGV[8], ARGV[9])
	end
end
return 1
`)

// claimScript: KEYS = request, unnotified set. ARGV = request id.
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'notified') == '1' then return 0 end
redis.call('HSET', KEYS[1], 'notified', '1')
redis.call('SREM', KEYS[2], ARGV[1])
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
redis.call('HSET', KEYS[1], 'notified', '0')
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

func NewRedisRepositories(client *redis.Client) *Repositories {
	return &Repositories{
		Profiles:      &redisProfiles{client: client},
		Requests:      &redisRequests{client: client},
		DonorRequests: &redisDonorRequests{client: client},
		Notifications: &redisNotifications{client: client},
	}
}

// runStatusScript applies a StatusChange to the record stored at key.
func runStatusScript(ctx context.Context, client *redis.Client, key string, change entity.StatusChange) (int64, error) {
	var notificationData, notificationID, creditKey, nKey, inbox string
	var notificationScore float64

	creditKey = profileKey(change.CreditProfileID)
	credit := redisFlagFalse
	if change.CreditProfileID != "" {
		credit = redisFlagTrue
	}

	if n := change.Notification; n != nil {
		data, err := json.Marshal(notificationRecord(n))
		if err != nil {
			return 0, fmt.Errorf("failed to marshal notification: %w", err)
		}
		notificationData = string(data)
		notificationID = n.ID
		notificationScore = score(n.Timestamp)
		nKey = notificationKey(n.RecipientID, n.ID)
		inbox = inboxKey(n.RecipientID)
	} else {
		nKey = notificationKey("", "")
		inbox = inboxKey("")
	}

	return statusScript.Run(ctx, client,
		[]string{key, creditKey, nKey, inbox},
		string(change.From),
		string(change.To),
		change.DonorID,
		change.DonorName,
		change.At.Format(redisTimeLayout),
		credit,
		notificationData,
		notificationScore,
		notificationID,
	).Int64()
}

func parseTime(value string) time.Time {
	t, _ := time.Parse(redisTimeLayout, value)
	return t
}

type redisProfiles struct {
	client *redis.Client
}

func (r *redisProfiles) Upsert(ctx context.Context, profile *entity.Profile) error {
	existing, err := r.GetByID(ctx, profile.ID)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		existing = nil
	case err != nil:
		return err
	}

	if existing != nil {
		profile.DonationCount = existing.DonationCount
		profile.CreatedAt = existing.CreatedAt
	}

	record := *profile
	record.DonationCount = 0
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, profileKey(profile.ID), fieldData, data)
		pipe.HSetNX(ctx, profileKey(profile.ID), fieldDonationCount, 0)
		pipe.ZAddNX(ctx, keyProfiles, redis.Z{Score: score(profile.CreatedAt), Member: profile.ID})
		if existing != nil && existing.IsDonor() && existing.BloodType != "" {
			pipe.ZRem(ctx, donorsKey(existing.BloodType), profile.ID)
		}
		if profile.IsDonor() && profile.BloodType != "" {
			pipe.ZAdd(ctx, donorsKey(profile.BloodType), redis.Z{Score: score(profile.CreatedAt), Member: profile.ID})
		}
		return nil
	})
	if err != nil {
		return entity.Unavailable("upsert profile", err)
	}
	return nil
}

func (r *redisProfiles) GetByID(ctx context.Context, id string) (*entity.Profile, error) {
	values, err := r.client.HGetAll(ctx, profileKey(id)).Result()
	if err != nil {
		return nil, entity.Unavailable("get profile", err)
	}
	if len(values) == 0 || values[fieldData] == "" {
		return nil, entity.ErrProfileNotFound
	}

	var profile entity.Profile
	if err := json.Unmarshal([]byte(values[fieldData]), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile %s: %w", id, err)
	}
	profile.DonationCount, _ = strconv.Atoi(values[fieldDonationCount])
	return &profile, nil
}

func (r *redisProfiles) loadAll(ctx context.Context, ids []string) ([]*entity.Profile, error) {
	profiles := make([]*entity.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetByID(ctx, id)
		if errors.Is(err, entity.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (r *redisProfiles) List(ctx context.Context) ([]*entity.Profile, error) {
	ids, err := r.client.ZRange(ctx, keyProfiles, 0, -1).Result()
	if err != nil {
		return nil, entity.Unavailable("list profiles", err)
	}
	return r.loadAll(ctx, ids)
}

func (r *redisProfiles) ListDonorsByBloodType(ctx context.Context, bloodType string) ([]*entity.Profile, error) {
	ids, err := r.client.ZRange(ctx, donorsKey(bloodType), 0, -1).Result()
	if err != nil {
		return nil, entity.Unavailable("list donors", err)
	}
	return r.loadAll(ctx, ids)
}

type redisRequests struct {
	client *redis.Client
}

func (r *redisRequests) Create(ctx context.Context, request *entity.BloodRequest) error {
	record := *request
	record.Status = ""
	record.DonorID, record.DonorName = "", ""
	record.Notified = false
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal blood request: %w", err)
	}

	notified := redisFlagFalse
	if request.Notified {
		notified = redisFlagTrue
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, requestKey(request.ID),
			fieldData, data,
			fieldStatus, string(request.Status),
			fieldDonorID, request.DonorID,
			fieldDonorName, request.DonorName,
			fieldNotified, notified,
			fieldUpdatedAt, request.UpdatedAt.Format(redisTimeLayout),
		)
		pipe.ZAdd(ctx, keyRequests, redis.Z{Score: score(request.CreatedAt), Member: request.ID})
		if request.Contact != "" {
			pipe.ZAdd(ctx, contactKey(request.Contact), redis.Z{Score: score(request.CreatedAt), Member: request.ID})
		}
		if !request.Notified {
			pipe.SAdd(ctx, keyUnnotified, request.ID)
		}
		return nil
	})
	if err != nil {
		return entity.Unavailable("create blood request", err)
	}
	return nil
}

func (r *redisRequests) GetByID(ctx context.Context, id string) (*entity.BloodRequest, error) {
	values, err := r.client.HGetAll(ctx, requestKey(id)).Result()
	if err != nil {
		return nil, entity.Unavailable("get blood request", err)
	}
	if len(values) == 0 || values[fieldData] == "" {
		return nil, entity.ErrRequestNotFound
	}

	var request entity.BloodRequest
	if err := json.Unmarshal([]byte(values[fieldData]), &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal blood request %s: %w", id, err)
	}
	request.Status = entity.RequestStatus(values[fieldStatus])
	request.DonorID = values[fieldDonorID]
	request.DonorName = values[fieldDonorName]
	request.Notified = values[fieldNotified] == redisFlagTrue
	request.UpdatedAt = parseTime(values[fieldUpdatedAt])
	return &request, nil
}

func (r *redisRequests) loadAll(ctx context.Context, ids []string) ([]*entity.BloodRequest, error) {
	requests := make([]*entity.BloodRequest, 0, len(ids))
	for _, id := range ids {
		req, err := r.GetByID(ctx, id)
		if errors.Is(err, entity.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func (r *redisRequests) List(ctx context.Context) ([]*entity.BloodRequest, error) {
	ids, err := r.client.ZRevRange(ctx, keyRequests, 0, -1).Result()
	if err != nil {
		return nil, entity.Unavailable("list blood requests", err)
	}
	return r.loadAll(ctx, ids)
}

func (r *redisRequests) ListByContactSince(ctx context.Context, contact string, since time.Time) ([]*entity.BloodRequest, error) {
	ids, err := r.client.ZRevRangeByScore(ctx, contactKey(contact), &redis.ZRangeBy{
		Min: strconv.FormatFloat(score(since), 'f', -1, 64),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, entity.Unavailable("list requests by contact", err)
	}
	return r.loadAll(ctx, ids)
}

func (r *redisRequests) ListUnnotified(ctx context.Context, limit int) ([]*entity.BloodRequest, error) {
	ids, err := r.client.SMembers(ctx, keyUnnotified).Result()
	if err != nil {
		return nil, entity.Unavailable("list unnotified requests", err)
	}

	requests, err := r.loadAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(requests, func(i, j int) bool { return requests[i].CreatedAt.Before(requests[j].CreatedAt) })
	if limit > 0 && len(requests) > limit {
		requests = requests[:limit]
	}
	return requests, nil
}

func (r *redisRequests) UpdateStatus(ctx context.Context, change entity.StatusChange) (bool, error) {
	res, err := runStatusScript(ctx, r.client, requestKey(change.ID), change)
	if err != nil {
		return false, entity.Unavailable("update blood request status", err)
	}
	if res == scriptResultAbsent {
		return false, entity.ErrRequestNotFound
	}
	return res == 1, nil
}

func (r *redisRequests) ClaimFanout(ctx context.Context, id string) (bool, error) {
	res, err := claimScript.Run(ctx, r.client, []string{requestKey(id), keyUnnotified}, id).Int64()
	if err != nil {
		return false, entity.Unavailable("claim fan-out", err)
	}
	if res == scriptResultAbsent {
		return false, entity.ErrRequestNotFound
	}
	return res == 1, nil
}

func (r *redisRequests) ReleaseFanout(ctx context.Context, id string) error {
	res, err := releaseScript.Run(ctx, r.client, []string{requestKey(id), keyUnnotified}, id).Int64()
	if err != nil {
		return entity.Unavailable("release fan-out", err)
	}
	if res == scriptResultAbsent {
		return entity.ErrRequestNotFound
	}
	return nil
}

type redisDonorRequests struct {
	client *redis.Client
}

func (r *redisDonorRequests) Create(ctx context.Context, request *entity.DonorRequest, notification *entity.Notification) error {
	record := *request
	record.Status = ""
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal donor request: %w", err)
	}

	var nData []byte
	if notification != nil {
		if nData, err = json.Marshal(notificationRecord(notification)); err != nil {
			return fmt.Errorf("failed to marshal notification: %w", err)
		}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, donorRequestKey(request.ID),
			fieldData, data,
			fieldStatus, string(request.Status),
			fieldUpdatedAt, request.UpdatedAt.Format(redisTimeLayout),
		)
		z := redis.Z{Score: score(request.CreatedAt), Member: request.ID}
		pipe.ZAdd(ctx, donorRequestsToKey(request.ToID), z)
		pipe.ZAdd(ctx, donorRequestsFromKey(request.FromID), z)
		if notification != nil {
			key := notificationKey(notification.RecipientID, notification.ID)
			pipe.HSetNX(ctx, key, fieldData, nData)
			pipe.HSetNX(ctx, key, fieldRead, redisFlagFalse)
			pipe.ZAddNX(ctx, inboxKey(notification.RecipientID), redis.Z{Score: score(notification.Timestamp), Member: notification.ID})
		}
		return nil
	})
	if err != nil {
		return entity.Unavailable("create donor request", err)
	}
	return nil
}

func (r *redisDonorRequests) GetByID(ctx context.Context, id string) (*entity.DonorRequest, error) {
	values, err := r.client.HGetAll(ctx, donorRequestKey(id)).Result()
	if err != nil {
		return nil, entity.Unavailable("get donor request", err)
	}
	if len(values) == 0 || values[fieldData] == "" {
		return nil, entity.ErrDonorRequestNotFound
	}

	var request entity.DonorRequest
	if err := json.Unmarshal([]byte(values[fieldData]), &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal donor request %s: %w", id, err)
	}
	request.Status = entity.RequestStatus(values[fieldStatus])
	request.UpdatedAt = parseTime(values[fieldUpdatedAt])
	return &request, nil
}

func (r *redisDonorRequests) listIndex(ctx context.Context, key string) ([]*entity.DonorRequest, error) {
	ids, err := r.client.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, entity.Unavailable("list donor requests", err)
	}

	requests := make([]*entity.DonorRequest, 0, len(ids))
	for _, id := range ids {
		dr, err := r.GetByID(ctx, id)
		if errors.Is(err, entity.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		requests = append(requests, dr)
	}
	return requests, nil
}

func (r *redisDonorRequests) ListByRecipient(ctx context.Context, toID string) ([]*entity.DonorRequest, error) {
	return r.listIndex(ctx, donorRequestsToKey(toID))
}

func (r *redisDonorRequests) ListBySender(ctx context.Context, fromID string) ([]*entity.DonorRequest, error) {
	return r.listIndex(ctx, donorRequestsFromKey(fromID))
}

func (r *redisDonorRequests) UpdateStatus(ctx context.Context, change entity.StatusChange) (bool, error) {
	res, err := runStatusScript(ctx, r.client, donorRequestKey(change.ID), change)
	if err != nil {
		return false, entity.Unavailable("update donor request status", err)
	}
	if res == scriptResultAbsent {
		return false, entity.ErrDonorRequestNotFound
	}
	return res == 1, nil
}

type redisNotifications struct {
	client *redis.Client
}

// notificationRecord strips the mutable read flag before storage.
func notificationRecord(n *entity.Notification) entity.Notification {
	record := *n
	record.Read = false
	return record
}

func (r *redisNotifications) Create(ctx context.Context, notification *entity.Notification) error {
	data, err := json.Marshal(notificationRecord(notification))
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	key := notificationKey(notification.RecipientID, notification.ID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldData, data)
		pipe.HSetNX(ctx, key, fieldRead, redisFlagFalse)
		pipe.ZAddNX(ctx, inboxKey(notification.RecipientID), redis.Z{Score: score(notification.Timestamp), Member: notification.ID})
		return nil
	})
	if err != nil {
		return entity.Unavailable("create notification", err)
	}
	return nil
}

func (r *redisNotifications) ListByRecipient(ctx context.Context, recipientID string) ([]*entity.Notification, error) {
	ids, err := r.client.ZRevRange(ctx, inboxKey(recipientID), 0, -1).Result()
	if err != nil {
		return nil, entity.Unavailable("list notifications", err)
	}

	notifications := make([]*entity.Notification, 0, len(ids))
	for _, id := range ids {
		values, err := r.client.HGetAll(ctx, notificationKey(recipientID, id)).Result()
		if err != nil {
			return nil, entity.Unavailable("get notification", err)
		}
		if values[fieldData] == "" {
			continue
		}

		var n entity.Notification
		if err := json.Unmarshal([]byte(values[fieldData]), &n); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification %s: %w", id, err)
		}
		n.Read = values[fieldRead] == redisFlagTrue
		notifications = append(notifications, &n)
	}
	sortNotifications(notifications)
	return notifications, nil
}

func (r *redisNotifications) MarkRead(ctx context.Context, recipientID, id string) error {
	key := notificationKey(recipientID, id)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return entity.Unavailable("mark notification read", err)
	}
	if exists == 0 {
		return entity.ErrNotificationNotFound
	}
	if err := r.client.HSet(ctx, key, fieldRead, redisFlagTrue).Err(); err != nil {
		return entity.Unavailable("mark notification read", err)
	}
	return nil
}
