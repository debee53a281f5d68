package services

import (
	"context"

	"github.com/guseggert/k4/rpc"
)

// NetworkInfo looks up users, channels and groups on the chat network the script was invoked from.
type NetworkInfo struct {
	stub rpc.Stub
}

func NewNetworkInfo(s *rpc.Session) *NetworkInfo {
	return &NetworkInfo{stub: s.Namespace("NetworkInfo")}
}

type UserInfo struct {
	Name          string            `json:"name"`
	AccountHandle string            `json:"accountHandle"`
	Extra         map[string]string `json:"extra"`
}

type ChannelInfo struct {
	Name       string            `json:"name"`
	IsOneOnOne bool              `json:"isOneOnOne"`
	Extra      map[string]string `json:"extra"`
}

type GroupInfo struct {
	Name  string            `json:"name"`
	Extra map[string]string `json:"extra"`
}

type MemberInfo struct {
	Name  string            `json:"name"`
	Roles []string          `json:"roles"`
	Extra map[string]string `json:"extra"`
}

func (n *NetworkInfo) GetUserInfo(ctx context.Context, id string) (*UserInfo, error) {
	var info UserInfo
	if err := n.stub.CallInto(ctx, "GetUserInfo", rpc.Args{"id": id}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (n *NetworkInfo) GetChannelInfo(ctx context.Context, id string) (*ChannelInfo, error) {
	var info ChannelInfo
	if err := n.stub.CallInto(ctx, "GetChannelInfo", rpc.Args{"id": id}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (n *NetworkInfo) GetGroupInfo(ctx context.Context, id string) (*GroupInfo, error) {
	var info GroupInfo
	if err := n.stub.CallInto(ctx, "GetGroupInfo", rpc.Args{"id": id}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (n *NetworkInfo) GetChannelMemberInfo(ctx context.Context, channelID, userID string) (*MemberInfo, error) {
	var info MemberInfo
	if err := n.stub.CallInto(ctx, "GetChannelMemberInfo", rpc.Args{"channelId": channelID, "userId": userID}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (n *NetworkInfo) GetGroupMemberInfo(ctx context.Context, groupID, userID string) (*MemberInfo, error) {
	var info MemberInfo
	if err := n.stub.CallInto(ctx, "GetGroupMemberInfo", rpc.Args{"groupId": groupID, "userId": userID}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
